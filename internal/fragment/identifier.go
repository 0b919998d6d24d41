package fragment

import (
	"sort"
	"strings"
)

// Pair is one (key, value) coordinate of a fragment address.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p Pair) String() string { return p.Key + "=" + p.Value }

// ViewName addresses a view of a collection. The string form is
// "collection/name", or just "name" when the view has no collection.
type ViewName struct {
	Collection string `json:"collection,omitempty"`
	Name       string `json:"name"`
}

// ParseViewName parses "collection/name" or "name".
func ParseViewName(s string) (ViewName, error) {
	collection, name, found := strings.Cut(s, "/")
	if !found {
		name, collection = collection, ""
	}
	if name == "" || strings.ContainsAny(s, "?&=") || (found && collection == "") || strings.Contains(name, "/") {
		return ViewName{}, &ParseError{Input: s}
	}
	return ViewName{Collection: collection, Name: name}, nil
}

func (v ViewName) String() string {
	if v.Collection == "" {
		return v.Name
	}
	return v.Collection + "/" + v.Name
}

// IsZero reports whether the view name is unset.
func (v ViewName) IsZero() bool { return v.Name == "" }

// Identifier addresses a fragment: a view plus its coordinate pairs. An
// identifier without pairs is the view's root.
type Identifier struct {
	View  ViewName `json:"view"`
	Pairs []Pair   `json:"pairs,omitempty"`
}

// NewIdentifier copies pairs so later mutation by the caller is not observed.
func NewIdentifier(view ViewName, pairs ...Pair) Identifier {
	return Identifier{View: view, Pairs: append([]Pair(nil), pairs...)}
}

// Root returns the root identifier of a view.
func Root(view ViewName) Identifier { return Identifier{View: view} }

// Parse reads the wire format "/<view>[?k=v(&k=v)*]". Any malformed segment
// fails with a *ParseError carrying the original input.
func Parse(fragmentID string) (Identifier, error) {
	fail := func() (Identifier, error) { return Identifier{}, &ParseError{Input: fragmentID} }

	if !strings.HasPrefix(fragmentID, "/") {
		return fail()
	}
	parts := strings.Split(fragmentID[1:], "?")
	if len(parts) > 2 {
		return fail()
	}
	view, err := ParseViewName(parts[0])
	if err != nil {
		return fail()
	}
	if len(parts) == 1 {
		return Root(view), nil
	}

	segments := strings.Split(parts[1], "&")
	pairs := make([]Pair, 0, len(segments))
	for _, seg := range segments {
		kv := strings.Split(seg, "=")
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return fail()
		}
		pairs = append(pairs, Pair{Key: kv[0], Value: kv[1]})
	}
	return Identifier{View: view, Pairs: pairs}, nil
}

// String renders the wire format, pairs in their original order.
func (id Identifier) String() string {
	var sb strings.Builder
	sb.WriteByte('/')
	sb.WriteString(id.View.String())
	for i, p := range id.Pairs {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// Key returns a canonical form in which pairs are sorted, so two identifiers
// are Equal exactly when their keys are equal. Use it for maps and storage.
func (id Identifier) Key() string {
	sorted := append([]Pair(nil), id.Pairs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Value < sorted[j].Value
	})
	return Identifier{View: id.View, Pairs: dedupPairs(sorted)}.String()
}

// Equal compares views and treats pairs as a set.
func (id Identifier) Equal(other Identifier) bool {
	if id.View != other.View {
		return false
	}
	return containsAll(id.Pairs, other.Pairs) && containsAll(other.Pairs, id.Pairs)
}

// IsRoot reports whether id addresses the view root.
func (id Identifier) IsRoot() bool { return len(id.Pairs) == 0 }

// ValueOf returns the value of the first pair with key.
func (id Identifier) ValueOf(key string) (string, bool) {
	for _, p := range id.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Parent drops the last pair. The root has no parent.
func (id Identifier) Parent() (Identifier, bool) {
	if id.IsRoot() {
		return Identifier{}, false
	}
	return NewIdentifier(id.View, id.Pairs[:len(id.Pairs)-1]...), true
}

// CreateChild returns a new identifier with pair appended. A pair whose key is
// already present is rejected with a *DuplicatePairError; id is unchanged.
func (id Identifier) CreateChild(pair Pair) (Identifier, error) {
	for _, p := range id.Pairs {
		if p.Key == pair.Key {
			return Identifier{}, &DuplicatePairError{ID: id.String(), Key: pair.Key}
		}
	}
	pairs := make([]Pair, 0, len(id.Pairs)+1)
	pairs = append(pairs, id.Pairs...)
	pairs = append(pairs, pair)
	return Identifier{View: id.View, Pairs: pairs}, nil
}

func containsAll(set, sub []Pair) bool {
	for _, s := range sub {
		found := false
		for _, p := range set {
			if p == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func dedupPairs(sorted []Pair) []Pair {
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
