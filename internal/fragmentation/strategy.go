package fragmentation

import "context"

// Strategy places a member below parent and returns the bucket(s) it lands
// in. Strategies compose by wrapping another Strategy.
type Strategy interface {
	AddMemberToBucket(ctx context.Context, parent Bucket, m Member) ([]Bucket, error)
}

// Leaf ends a strategy chain: the member stays in parent.
type Leaf struct{}

func (Leaf) AddMemberToBucket(_ context.Context, parent Bucket, _ Member) ([]Bucket, error) {
	return []Bucket{parent}, nil
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, parent Bucket, m Member) ([]Bucket, error)

func (f StrategyFunc) AddMemberToBucket(ctx context.Context, parent Bucket, m Member) ([]Bucket, error) {
	return f(ctx, parent, m)
}
