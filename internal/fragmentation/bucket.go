package fragmentation

import (
	"strings"

	"github.com/rzbill/ldes/internal/fragment"
)

// DescriptorPair is one (granularity key, value) step of a bucket path.
type DescriptorPair = fragment.Pair

// Descriptor is the ordered path of a bucket below its view root.
type Descriptor []DescriptorPair

// ParseDescriptor reads "k1=v1&k2=v2". The empty string is the root.
func ParseDescriptor(s string) (Descriptor, error) {
	if s == "" {
		return nil, nil
	}
	segs := strings.Split(s, "&")
	d := make(Descriptor, 0, len(segs))
	for _, seg := range segs {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" || strings.Contains(v, "=") {
			return nil, &fragment.ParseError{Input: s}
		}
		d = append(d, DescriptorPair{Key: k, Value: v})
	}
	return d, nil
}

func (d Descriptor) String() string {
	parts := make([]string, len(d))
	for i, p := range d {
		parts[i] = p.String()
	}
	return strings.Join(parts, "&")
}

// ValueOf returns the value of the first pair with key.
func (d Descriptor) ValueOf(key string) (string, bool) {
	for _, p := range d {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// With returns a copy of d with pair appended.
func (d Descriptor) With(pair DescriptorPair) Descriptor {
	out := make(Descriptor, 0, len(d)+1)
	out = append(out, d...)
	return append(out, pair)
}

// Bucket is the working node of fragmentation. It maps 1:1 to a fragment.
type Bucket struct {
	ID         int64             `json:"id"`
	View       fragment.ViewName `json:"view"`
	Descriptor Descriptor        `json:"descriptor,omitempty"`
}

// RootBucket returns the unsaved root bucket of view.
func RootBucket(view fragment.ViewName) Bucket {
	return Bucket{View: view}
}

func (b Bucket) IsRoot() bool { return len(b.Descriptor) == 0 }

// CreateChild returns an unsaved bucket one pair below b.
func (b Bucket) CreateChild(pair DescriptorPair) Bucket {
	return Bucket{View: b.View, Descriptor: b.CreateChildDescriptor(pair)}
}

// CreateChildDescriptor returns the descriptor a child with pair would have.
func (b Bucket) CreateChildDescriptor(pair DescriptorPair) Descriptor {
	return b.Descriptor.With(pair)
}

func (b Bucket) ValueOf(key string) (string, bool) { return b.Descriptor.ValueOf(key) }

// FragmentID returns the identifier of the fragment b materializes as.
func (b Bucket) FragmentID() fragment.Identifier {
	return fragment.NewIdentifier(b.View, b.Descriptor...)
}

// BucketRelation is an edge between two saved buckets.
type BucketRelation struct {
	From     Bucket
	To       Bucket
	Relation fragment.TreeRelation
}

// Member is an already extracted stream member.
type Member struct {
	ID         string         `json:"id"`
	Subject    string         `json:"subject"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Property resolves a possibly dotted path through nested maps.
func (m Member) Property(path string) (any, bool) {
	if v, ok := m.Properties[path]; ok {
		return v, true
	}
	cur := any(m.Properties)
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// BucketisedMember is a member waiting in a bucket for pagination. Seq
// orders members of a view by arrival.
type BucketisedMember struct {
	View     fragment.ViewName `json:"view"`
	BucketID int64             `json:"bucketId"`
	MemberID string            `json:"memberId"`
	Seq      uint64            `json:"seq"`
}
