package signature

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
)

// perlMatchTimeout bounds a backtracking match on one payload.
const perlMatchTimeout = 2 * time.Second

// textMatcher tests decoded payload text.
type textMatcher interface {
	MatchString(s string) bool
}

type re2Matcher struct {
	re *regexp.Regexp
}

func (m re2Matcher) MatchString(s string) bool { return m.re.MatchString(s) }

// perlMatcher serves patterns that need lookaround or backreferences.
type perlMatcher struct {
	re *regexp2.Regexp
}

func (m perlMatcher) MatchString(s string) bool {
	ok, err := m.re.MatchString(s)
	// A timeout counts as no match.
	return err == nil && ok
}

func compileText(spec config.SignatureSpec) (textMatcher, error) {
	switch strings.ToLower(spec.Syntax) {
	case "", config.SyntaxRE2:
		flags := ""
		if spec.IgnoreCase {
			flags += "i"
		}
		if spec.DotAll {
			flags += "s"
		}
		expr := spec.Pattern
		if flags != "" {
			expr = "(?" + flags + ")" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", core.ErrConfigInvalid, spec.Pattern, err)
		}
		return re2Matcher{re: re}, nil

	case config.SyntaxPerl:
		var opts regexp2.RegexOptions
		if spec.IgnoreCase {
			opts |= regexp2.IgnoreCase
		}
		if spec.DotAll {
			opts |= regexp2.Singleline
		}
		re, err := regexp2.Compile(spec.Pattern, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", core.ErrConfigInvalid, spec.Pattern, err)
		}
		re.MatchTimeout = perlMatchTimeout
		return perlMatcher{re: re}, nil

	default:
		return nil, fmt.Errorf("%w: unknown syntax %q", core.ErrConfigInvalid, spec.Syntax)
	}
}
