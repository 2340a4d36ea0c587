package signature

import "firestige.xyz/proclat/internal/core"

// FieldView is the projection of one frame onto the fields a profile tests,
// taken at one occurrence index of the native id.
type FieldView struct {
	NativeId string
	values   map[string]string
}

// NewFieldView builds a view from explicit values, mainly for tests.
func NewFieldView(nativeId string, values map[string]string) FieldView {
	return FieldView{NativeId: nativeId, values: values}
}

// Get returns the value of a field or tag in the view.
func (v FieldView) Get(name string) (string, bool) {
	s, ok := v.values[name]
	return s, ok
}

// Views projects a protocol tree into one FieldView per occurrence of the
// profile's native id field. Repeated fields are aligned by position; when a
// field has fewer occurrences than the id, its last value is used. Without a
// native id field the whole frame yields a single view.
func (p *Profile) Views(tree core.Tree) []FieldView {
	if tree.IsEmpty() || !p.hasFields {
		return nil
	}

	buckets := p.collect(tree)

	n := 1
	var ids []string
	if p.NativeIdField != "" {
		ids = buckets[p.NativeIdField]
		n = len(ids)
	}

	views := make([]FieldView, 0, n)
	for i := 0; i < n; i++ {
		v := FieldView{values: make(map[string]string, len(p.fieldNames)+len(p.tagMarkers))}
		if ids != nil {
			v.NativeId = ids[i]
		}
		for _, name := range p.fieldNames {
			if s, ok := pick(buckets[name], i); ok {
				v.values[name] = s
			}
		}
		for tag := range p.tagMarkers {
			if s, ok := pick(buckets[tagKey(tag)], i); ok {
				v.values[tag] = s
			}
		}
		views = append(views, v)
	}
	return views
}

// collect walks the tree once and buckets the occurrences of every name the
// profile cares about, in document order. Tag markers are bucketed under
// their tag with the tag value they stand for.
func (p *Profile) collect(tree core.Tree) map[string][]string {
	buckets := make(map[string][]string)
	for _, m := range tree.FindAny(p.lookupNames...) {
		if p.wantsValue[m.Name] {
			buckets[m.Name] = appendScalars(buckets[m.Name], m.Value)
		}
		if tv, ok := p.markerTag[m.Name]; ok {
			k := tagKey(tv.tag)
			buckets[k] = append(buckets[k], tv.value)
		}
	}
	return buckets
}

func appendScalars(dst []string, t core.Tree) []string {
	switch t.Kind() {
	case core.KindScalar:
		s, _ := t.Text()
		return append(dst, s)
	case core.KindList:
		for _, it := range t.Items() {
			if s, ok := it.Text(); ok {
				dst = append(dst, s)
			}
		}
	}
	return dst
}

func pick(vals []string, i int) (string, bool) {
	switch {
	case i < len(vals):
		return vals[i], true
	case len(vals) > 0:
		return vals[len(vals)-1], true
	default:
		return "", false
	}
}

// tagKey keeps tag buckets apart from field buckets of the same name.
func tagKey(tag string) string { return "\x00" + tag }
