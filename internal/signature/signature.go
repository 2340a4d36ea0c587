// Package signature compiles the declarative signature table and classifies
// decoded payload text or protocol-tree projections against it. Signatures
// are tested in configured order and the first match wins.
package signature

import (
	"fmt"
	"sort"
	"strings"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
)

// Signature is one compiled matcher of a profile.
type Signature struct {
	Index int
	Name  string
	Role  core.Role

	text   textMatcher  // set for payload signatures
	fields []fieldEqual // set for structured signatures
}

type fieldEqual struct {
	name string
	want string
}

// IsText reports whether the signature tests decoded payload text.
func (s *Signature) IsText() bool { return s.text != nil }

// Label returns the configured name, or the index when unnamed.
func (s *Signature) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d", s.Index)
}

type tagValue struct {
	tag   string
	value string
}

// Profile is the compiled configuration of one (function, variant, procedure).
type Profile struct {
	Function      string
	Variant       string
	Procedure     core.ProcedureKind
	Identity      core.IdentityStrategy
	NativeIdField string
	StartPolicy   core.StartPolicy
	Signatures    []Signature

	hasText     bool
	hasFields   bool
	fieldNames  []string                     // plain fields referenced by signatures
	tagMarkers  map[string]map[string]string // tag -> value -> marker field
	markerTag   map[string]tagValue
	wantsValue  map[string]bool
	lookupNames []string
}

// HasText reports whether any signature tests payload text.
func (p *Profile) HasText() bool { return p.hasText }

// HasFields reports whether any signature tests protocol-tree fields.
func (p *Profile) HasFields() bool { return p.hasFields }

// MatchText returns the index of the first text signature matching text.
// Empty text never matches.
func (p *Profile) MatchText(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	for i := range p.Signatures {
		s := &p.Signatures[i]
		if s.text != nil && s.text.MatchString(text) {
			return i, true
		}
	}
	return 0, false
}

// MatchFields returns the index of the first structured signature whose
// every field test holds in view.
func (p *Profile) MatchFields(view FieldView) (int, bool) {
	for i := range p.Signatures {
		s := &p.Signatures[i]
		if s.text != nil || len(s.fields) == 0 {
			continue
		}
		if s.matchView(view) {
			return i, true
		}
	}
	return 0, false
}

func (s *Signature) matchView(view FieldView) bool {
	for _, f := range s.fields {
		got, ok := view.Get(f.name)
		if !ok || got != f.want {
			return false
		}
	}
	return true
}

// Key returns the combination the profile was compiled from.
func (p *Profile) Key() config.Combination {
	return config.Combination{Function: p.Function, Variant: p.Variant, Procedure: string(p.Procedure)}
}

// Table is the compiled signature table.
type Table struct {
	profiles map[config.Combination]*Profile
}

// Load reads and compiles a signature table; an empty path selects the
// embedded default.
func Load(path string) (*Table, error) {
	f, err := config.LoadSignatures(path)
	if err != nil {
		return nil, err
	}
	return Compile(f)
}

// Compile builds every profile of f. Any invalid pattern fails the whole table.
func Compile(f *config.SignatureFile) (*Table, error) {
	t := &Table{profiles: make(map[config.Combination]*Profile)}
	for _, c := range f.Combinations() {
		spec, _ := f.Profile(c)
		p, err := compileProfile(c, spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		t.profiles[c] = p
	}
	return t, nil
}

// Lookup returns the profile of a combination. An unknown combination is a
// configuration error: there is no safe default signature set.
func (t *Table) Lookup(function, variant string, procedure core.ProcedureKind) (*Profile, error) {
	c := config.Combination{
		Function:  strings.ToLower(function),
		Variant:   strings.ToLower(variant),
		Procedure: string(procedure),
	}
	p, ok := t.profiles[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownCombination, c)
	}
	return p, nil
}

// Profiles returns every profile ordered by combination.
func (t *Table) Profiles() []*Profile {
	out := make([]*Profile, 0, len(t.profiles))
	for _, p := range t.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

func compileProfile(c config.Combination, spec config.ProfileSpec) (*Profile, error) {
	proc, err := core.ParseProcedure(c.Procedure)
	if err != nil {
		return nil, err
	}
	strategy, err := core.ParseIdentityStrategy(spec.Identity)
	if err != nil {
		return nil, err
	}
	policy, err := core.ParseStartPolicy(spec.StartPolicy)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		Function:      c.Function,
		Variant:       c.Variant,
		Procedure:     proc,
		Identity:      strategy,
		NativeIdField: spec.NativeIdField,
		StartPolicy:   policy,
		tagMarkers:    make(map[string]map[string]string),
		markerTag:     make(map[string]tagValue),
		wantsValue:    make(map[string]bool),
	}

	for tag, values := range spec.Tags {
		p.tagMarkers[tag] = values
		for value, marker := range values {
			p.markerTag[marker] = tagValue{tag: tag, value: value}
		}
	}

	fieldSet := make(map[string]bool)
	for i, ss := range spec.Signatures {
		role, err := core.ParseRole(ss.Role)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		sig := Signature{Index: i, Name: ss.Name, Role: role}

		if ss.IsText() {
			m, err := compileText(ss)
			if err != nil {
				return nil, fmt.Errorf("signature %d: %w", i, err)
			}
			sig.text = m
			p.hasText = true
		} else {
			for name, want := range ss.Fields {
				sig.fields = append(sig.fields, fieldEqual{name: name, want: want})
				if _, isTag := p.tagMarkers[name]; !isTag {
					fieldSet[name] = true
				}
			}
			sort.Slice(sig.fields, func(a, b int) bool { return sig.fields[a].name < sig.fields[b].name })
			p.hasFields = true
		}
		p.Signatures = append(p.Signatures, sig)
	}

	for name := range fieldSet {
		p.fieldNames = append(p.fieldNames, name)
		p.wantsValue[name] = true
	}
	sort.Strings(p.fieldNames)
	if p.NativeIdField != "" {
		p.wantsValue[p.NativeIdField] = true
	}
	for name := range p.wantsValue {
		p.lookupNames = append(p.lookupNames, name)
	}
	for marker := range p.markerTag {
		p.lookupNames = append(p.lookupNames, marker)
	}
	sort.Strings(p.lookupNames)

	return p, nil
}
