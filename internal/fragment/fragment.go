package fragment

import "time"

// Fragment is a node of the externally visible tree.
type Fragment struct {
	ID           Identifier     `json:"id"`
	Immutable    bool           `json:"immutable"`
	MembersAdded int            `json:"membersAdded"`
	Relations    []TreeRelation `json:"relations,omitempty"`
	DeleteTime   *time.Time     `json:"deleteTime,omitempty"`
	NextUpdate   *time.Time     `json:"nextUpdate,omitempty"`
}

// New returns a mutable, empty fragment.
func New(id Identifier) *Fragment {
	return &Fragment{ID: id}
}

// CreateChild returns a new mutable fragment one pair below f.
func (f *Fragment) CreateChild(pair Pair) (*Fragment, error) {
	id, err := f.ID.CreateChild(pair)
	if err != nil {
		return nil, err
	}
	return New(id), nil
}

func (f *Fragment) IsRoot() bool { return f.ID.IsRoot() }

func (f *Fragment) ValueOf(key string) (string, bool) { return f.ID.ValueOf(key) }

// AddRelation appends r. Identical relations are kept twice.
func (f *Fragment) AddRelation(r TreeRelation) {
	f.Relations = append(f.Relations, r)
}

// IsConnectedTo reports whether any relation points at other.
func (f *Fragment) IsConnectedTo(other Identifier) bool {
	for _, r := range f.Relations {
		if r.Node.Equal(other) {
			return true
		}
	}
	return false
}

// RemoveRelationsTo drops every relation pointing at other.
func (f *Fragment) RemoveRelationsTo(other Identifier) {
	kept := f.Relations[:0]
	for _, r := range f.Relations {
		if !r.Node.Equal(other) {
			kept = append(kept, r)
		}
	}
	f.Relations = kept
}

func (f *Fragment) MakeImmutable() { f.Immutable = true }

// MarkDeleted schedules the fragment for retention removal at t.
func (f *Fragment) MarkDeleted(t time.Time) {
	t = t.UTC()
	f.DeleteTime = &t
}

// SetNextUpdate records when the fragment's content is expected to settle.
func (f *Fragment) SetNextUpdate(t time.Time) {
	t = t.UTC()
	f.NextUpdate = &t
}
