package timebased

import (
	"context"
	"time"

	"github.com/rzbill/ldes/internal/fragmentation"
)

// BucketFinder walks a member down the granularity ladder.
type BucketFinder struct {
	creator *BucketCreator
	cfg     Config
}

func NewBucketFinder(creator *BucketCreator, cfg Config) *BucketFinder {
	return &BucketFinder{creator: creator, cfg: cfg}
}

// FindBucket returns the finest bucket for m below parent. Members whose
// subject fails the filter, or without a readable timestamp, go to the
// default bucket directly under parent.
func (f *BucketFinder) FindBucket(ctx context.Context, parent fragmentation.Bucket, m fragmentation.Member) (fragmentation.Bucket, error) {
	t, ok := f.memberTime(m)
	if !ok {
		return f.creator.GetOrCreateBucket(ctx, parent, DefaultBucketValue, Year)
	}
	ts := NewTimestamp(t, f.cfg.MaxGranularity)
	current := parent
	for _, g := range Ladder(f.cfg.MaxGranularity) {
		next, err := f.creator.GetOrCreateForTimestamp(ctx, current, ts, g)
		if err != nil {
			return fragmentation.Bucket{}, err
		}
		current = next
	}
	return current, nil
}

func (f *BucketFinder) memberTime(m fragmentation.Member) (time.Time, bool) {
	if !f.cfg.Matches(m.Subject) {
		return time.Time{}, false
	}
	v, found := m.Property(f.cfg.FragmentationPath)
	if !found {
		return time.Time{}, false
	}
	return parseTime(v)
}
