package core

// TreeKind discriminates the Tree variant.
type TreeKind uint8

const (
	KindNone TreeKind = iota
	KindScalar
	KindMap
	KindList
)

// Entry is one key/value pair of a map Tree. Maps keep document order and
// may repeat keys, as dissector output does for repeated protocol fields.
type Entry struct {
	Key   string
	Value Tree
}

// Tree is the structured protocol-field tree of a Record: a map, a list or a
// scalar. The zero Tree is empty.
type Tree struct {
	kind    TreeKind
	scalar  string
	entries []Entry
	items   []Tree
}

// Match is one occurrence found by FindAny.
type Match struct {
	Name  string
	Value Tree
}

// Scalar builds a scalar Tree.
func Scalar(s string) Tree { return Tree{kind: KindScalar, scalar: s} }

// Map builds a map Tree from ordered entries.
func Map(entries ...Entry) Tree { return Tree{kind: KindMap, entries: entries} }

// List builds a list Tree.
func List(items ...Tree) Tree { return Tree{kind: KindList, items: items} }

// E is shorthand for an Entry literal.
func E(key string, value Tree) Entry { return Entry{Key: key, Value: value} }

func (t Tree) Kind() TreeKind   { return t.kind }
func (t Tree) IsEmpty() bool    { return t.kind == KindNone }
func (t Tree) Entries() []Entry { return t.entries }
func (t Tree) Items() []Tree    { return t.items }

// Text returns the scalar value.
func (t Tree) Text() (string, bool) {
	if t.kind != KindScalar {
		return "", false
	}
	return t.scalar, true
}

// Lookup returns the first direct child named key of a map Tree.
func (t Tree) Lookup(key string) (Tree, bool) {
	for _, e := range t.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Tree{}, false
}

// Get follows a path of map keys from t.
func (t Tree) Get(path ...string) (Tree, bool) {
	cur := t
	for _, key := range path {
		next, ok := cur.Lookup(key)
		if !ok {
			return Tree{}, false
		}
		cur = next
	}
	return cur, true
}

// FindAny walks the whole tree depth-first and returns every entry whose key
// is one of names, in document order. Matched subtrees are still descended.
func (t Tree) FindAny(names ...string) []Match {
	if len(names) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []Match
	t.walk(func(key string, value Tree) {
		if _, ok := want[key]; ok {
			out = append(out, Match{Name: key, Value: value})
		}
	})
	return out
}

// FindAll returns the scalar values of every entry named name, in document
// order. A list value contributes each of its scalar items.
func (t Tree) FindAll(name string) []string {
	var out []string
	for _, m := range t.FindAny(name) {
		switch m.Value.kind {
		case KindScalar:
			out = append(out, m.Value.scalar)
		case KindList:
			for _, it := range m.Value.items {
				if it.kind == KindScalar {
					out = append(out, it.scalar)
				}
			}
		}
	}
	return out
}

// First returns the first scalar value of name anywhere in the tree.
func (t Tree) First(name string) (string, bool) {
	vals := t.FindAll(name)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func (t Tree) walk(visit func(key string, value Tree)) {
	switch t.kind {
	case KindMap:
		for _, e := range t.entries {
			visit(e.Key, e.Value)
			e.Value.walk(visit)
		}
	case KindList:
		for _, it := range t.items {
			it.walk(visit)
		}
	}
}
