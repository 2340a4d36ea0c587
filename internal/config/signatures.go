package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/proclat/internal/core"
)

//go:embed default_signatures.yml
var defaultSignatures []byte

// Regex syntaxes accepted by SignatureSpec.Syntax.
const (
	SyntaxRE2  = "re2"
	SyntaxPerl = "perl"
)

// SignatureFile is the declarative signature table:
// function -> variant -> procedure -> profile.
type SignatureFile struct {
	Version   int                                          `yaml:"version"`
	Functions map[string]map[string]map[string]ProfileSpec `yaml:"functions"`
}

// ProfileSpec configures one (function, variant, procedure) combination.
type ProfileSpec struct {
	Identity      string `yaml:"identity"`        // native / pattern / counter
	NativeIdField string `yaml:"native_id_field"` // Tree field holding the per-session id
	StartPolicy   string `yaml:"start_policy"`    // first_wins / last_wins

	// Tags name a derived field whose value is whichever of the listed
	// marker fields occurs, e.g. outcome: {initiating: ngap.initiatingMessage_element}.
	Tags map[string]map[string]string `yaml:"tags"`

	Signatures []SignatureSpec `yaml:"signatures"`
}

// SignatureSpec is one ordered matcher. Exactly one of Pattern and Fields is set.
type SignatureSpec struct {
	Name       string            `yaml:"name"`
	Role       string            `yaml:"role"`
	Pattern    string            `yaml:"pattern"`
	Syntax     string            `yaml:"syntax"` // re2 (default) / perl
	IgnoreCase bool              `yaml:"ignore_case"`
	DotAll     bool              `yaml:"dot_all"`
	Fields     map[string]string `yaml:"fields"` // field or tag name -> expected value
}

// IsText reports whether the signature matches decoded payload text.
func (s SignatureSpec) IsText() bool { return s.Pattern != "" }

// Combination identifies one profile of the table.
type Combination struct {
	Function  string
	Variant   string
	Procedure string
}

func (c Combination) String() string {
	return c.Function + "/" + c.Variant + "/" + c.Procedure
}

// LoadSignatures reads a signature table. An empty path yields the embedded default.
func LoadSignatures(path string) (*SignatureFile, error) {
	data := defaultSignatures
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read signature table: %w", err)
		}
	}
	return ParseSignatures(data)
}

// ParseSignatures decodes and structurally validates a signature table.
// Patterns are compiled later by the signature package.
func ParseSignatures(data []byte) (*SignatureFile, error) {
	var f SignatureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: signature table: %v", core.ErrConfigInvalid, err)
	}
	if f.Version == 0 {
		f.Version = 1
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported signature table version %d", core.ErrConfigInvalid, f.Version)
	}
	if len(f.Functions) == 0 {
		return nil, fmt.Errorf("%w: signature table has no functions", core.ErrConfigInvalid)
	}

	normalized := make(map[string]map[string]map[string]ProfileSpec, len(f.Functions))
	for fn, variants := range f.Functions {
		fn = strings.ToLower(fn)
		if normalized[fn] == nil {
			normalized[fn] = make(map[string]map[string]ProfileSpec)
		}
		for variant, procs := range variants {
			variant = strings.ToLower(variant)
			if normalized[fn][variant] == nil {
				normalized[fn][variant] = make(map[string]ProfileSpec)
			}
			for proc, spec := range procs {
				c := Combination{Function: fn, Variant: variant, Procedure: proc}
				if err := spec.validate(); err != nil {
					return nil, fmt.Errorf("%s: %w", c, err)
				}
				p, err := core.ParseProcedure(proc)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %v", core.ErrConfigInvalid, c, err)
				}
				normalized[fn][variant][string(p)] = spec
			}
		}
	}
	f.Functions = normalized

	return &f, nil
}

// Profile returns the profile of a combination.
func (f *SignatureFile) Profile(c Combination) (ProfileSpec, bool) {
	spec, ok := f.Functions[c.Function][c.Variant][c.Procedure]
	return spec, ok
}

// Combinations lists every configured combination in sorted order.
func (f *SignatureFile) Combinations() []Combination {
	var out []Combination
	for fn, variants := range f.Functions {
		for variant, procs := range variants {
			for proc := range procs {
				out = append(out, Combination{Function: fn, Variant: variant, Procedure: proc})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

func (p ProfileSpec) validate() error {
	strategy, err := core.ParseIdentityStrategy(p.Identity)
	if err != nil {
		return err
	}
	if strategy == core.IdentityNative && p.NativeIdField == "" {
		return fmt.Errorf("%w: identity native requires native_id_field", core.ErrConfigInvalid)
	}
	if _, err := core.ParseStartPolicy(p.StartPolicy); err != nil {
		return err
	}
	if len(p.Signatures) == 0 {
		return fmt.Errorf("%w: empty signature list", core.ErrConfigInvalid)
	}

	for name, values := range p.Tags {
		if len(values) == 0 {
			return fmt.Errorf("%w: tag %q has no values", core.ErrConfigInvalid, name)
		}
	}

	for i, s := range p.Signatures {
		if _, err := core.ParseRole(s.Role); err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		switch {
		case s.Pattern != "" && len(s.Fields) > 0:
			return fmt.Errorf("%w: signature %d sets both pattern and fields", core.ErrConfigInvalid, i)
		case s.Pattern == "" && len(s.Fields) == 0:
			return fmt.Errorf("%w: signature %d sets neither pattern nor fields", core.ErrConfigInvalid, i)
		}
		switch strings.ToLower(s.Syntax) {
		case "", SyntaxRE2, SyntaxPerl:
		default:
			return fmt.Errorf("%w: signature %d: unknown syntax %q", core.ErrConfigInvalid, i, s.Syntax)
		}
		for field, want := range s.Fields {
			values, isTag := p.Tags[field]
			if !isTag {
				continue
			}
			if _, ok := values[want]; !ok {
				return fmt.Errorf("%w: signature %d: tag %s has no value %q", core.ErrConfigInvalid, i, field, want)
			}
		}
	}
	return nil
}
