package timebased

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/pkg/log"
)

// BucketCreator gets or creates the child bucket for one granularity step.
type BucketCreator struct {
	store      fragmentation.BucketStore
	attributer *RelationsAttributer
	metrics    *metrics.Metrics
	logger     log.Logger
}

func NewBucketCreator(store fragmentation.BucketStore, attributer *RelationsAttributer, m *metrics.Metrics, logger log.Logger) *BucketCreator {
	return &BucketCreator{store: store, attributer: attributer, metrics: m, logger: logger}
}

// GetOrCreateForTimestamp renders ts at g and delegates to GetOrCreateBucket.
func (c *BucketCreator) GetOrCreateForTimestamp(ctx context.Context, parent fragmentation.Bucket, ts Timestamp, g Granularity) (fragmentation.Bucket, error) {
	return c.GetOrCreateBucket(ctx, parent, ts.TimeValueFor(g), g)
}

// GetOrCreateBucket returns the child of parent at (g, value). Exactly one
// caller inserts a given child, and its relations commit with the insert.
// Relations still staged when the child is found, because a previous publish
// failed, are published before returning.
func (c *BucketCreator) GetOrCreateBucket(ctx context.Context, parent fragmentation.Bucket, value string, g Granularity) (fragmentation.Bucket, error) {
	pair := fragmentation.DescriptorPair{Key: g.Key(), Value: value}
	b, found, err := c.store.Retrieve(ctx, parent.View, parent.CreateChildDescriptor(pair))
	if err != nil {
		return fragmentation.Bucket{}, err
	}
	if found {
		if err := c.attributer.Publish(ctx, b); err != nil {
			return fragmentation.Bucket{}, err
		}
		return b, nil
	}

	child, created, err := c.store.InsertIfAbsent(ctx, parent.CreateChild(pair), func(batch *pebble.Batch, child fragmentation.Bucket) error {
		if IsDefaultBucket(child) {
			return c.attributer.AddDefaultRelation(batch, parent, child)
		}
		return c.attributer.AddInBetweenRelation(batch, parent, child)
	})
	if err != nil {
		return fragmentation.Bucket{}, err
	}
	if created {
		c.metrics.FragmentCreated(child.View.String(), StrategyName)
		c.logger.Debug("bucket created",
			log.Str("view", child.View.String()), log.Str("bucket", child.Descriptor.String()), log.Int64("bucket_id", child.ID))
	}
	if err := c.attributer.Publish(ctx, child); err != nil {
		return fragmentation.Bucket{}, err
	}
	return child, nil
}

// IsDefaultBucket reports whether b's year value is the default sentinel.
// A year literally named "unknown" is indistinguishable from the default
// bucket.
func IsDefaultBucket(b fragmentation.Bucket) bool {
	v, ok := b.ValueOf(Year.Key())
	return ok && v == DefaultBucketValue
}
