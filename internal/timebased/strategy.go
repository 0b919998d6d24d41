package timebased

import (
	"context"

	"github.com/rzbill/ldes/internal/fragmentation"
)

// Strategy places members in time buckets, then hands the leaf bucket to the
// wrapped strategy.
type Strategy struct {
	wrapped fragmentation.Strategy
	finder  *BucketFinder
}

var _ fragmentation.Strategy = (*Strategy)(nil)

func NewStrategy(wrapped fragmentation.Strategy, finder *BucketFinder) *Strategy {
	if wrapped == nil {
		wrapped = fragmentation.Leaf{}
	}
	return &Strategy{wrapped: wrapped, finder: finder}
}

func (s *Strategy) AddMemberToBucket(ctx context.Context, parent fragmentation.Bucket, m fragmentation.Member) ([]fragmentation.Bucket, error) {
	leaf, err := s.finder.FindBucket(ctx, parent, m)
	if err != nil {
		return nil, err
	}
	return s.wrapped.AddMemberToBucket(ctx, leaf, m)
}
