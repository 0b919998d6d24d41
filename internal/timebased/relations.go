package timebased

import (
	"context"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
)

// RelationsAttributer stages the relations linking a new bucket to its parent
// in the batch that inserts the bucket, and publishes them once committed.
type RelationsAttributer struct {
	outbox *events.Outbox
	cfg    Config
}

func NewRelationsAttributer(outbox *events.Outbox, cfg Config) *RelationsAttributer {
	return &RelationsAttributer{outbox: outbox, cfg: cfg}
}

// AddInBetweenRelation stages the [GTE, LT) pair covering child's window.
// With linear caching enabled each relation is preceded by a caching trigger
// for the parent.
func (a *RelationsAttributer) AddInBetweenRelation(b *pebble.Batch, parent, child fragmentation.Bucket) error {
	ts, err := TimestampOf(child.Descriptor)
	if err != nil {
		return err
	}
	relations := []fragment.TreeRelation{
		a.timeRelation(child, fragment.GreaterThanOrEqual, FormatDateTime(ts.Time)),
		a.timeRelation(child, fragment.LessThan, FormatDateTime(ts.LtBoundary())),
	}
	evs := make([]events.Event, 0, 4)
	for _, r := range relations {
		if a.cfg.LinearTimeCachingEnabled {
			evs = append(evs, events.LinearCachingTriggered{
				View:       parent.View,
				BucketID:   parent.ID,
				Fragment:   parent.FragmentID(),
				NextUpdate: ts.NextUpdate(),
			})
		}
		evs = append(evs, relationCreated(parent, child, r))
	}
	return a.outbox.Stage(b, child.View, relationsKey(child), evs...)
}

// AddDefaultRelation stages a single generic relation to the default bucket.
func (a *RelationsAttributer) AddDefaultRelation(b *pebble.Batch, parent, child fragmentation.Bucket) error {
	return a.outbox.Stage(b, child.View, relationsKey(child), relationCreated(parent, child, fragment.GenericRelation(child.FragmentID())))
}

// Publish emits the relations staged for child, if any are left.
func (a *RelationsAttributer) Publish(ctx context.Context, child fragmentation.Bucket) error {
	return errors.Wrapf(a.outbox.Flush(ctx, child.View, relationsKey(child)), "publish relations of %s", child.FragmentID())
}

func relationsKey(b fragmentation.Bucket) string { return "bkt/" + b.Descriptor.String() }

func (a *RelationsAttributer) timeRelation(child fragmentation.Bucket, kind fragment.RelationKind, value string) fragment.TreeRelation {
	return fragment.TreeRelation{
		Node:      child.FragmentID(),
		Kind:      kind,
		Value:     value,
		ValueType: fragment.DateTimeType,
		Path:      a.cfg.FragmentationPath,
	}
}

func relationCreated(parent, child fragmentation.Bucket, r fragment.TreeRelation) events.BucketRelationCreated {
	return events.BucketRelationCreated{
		View:         parent.View,
		FromBucketID: parent.ID,
		ToBucketID:   child.ID,
		From:         parent.FragmentID(),
		Relation:     r,
	}
}

// TimestampOf rebuilds the window start of a descriptor from its
// granularity-keyed pairs; other pairs are ignored.
func TimestampOf(d fragmentation.Descriptor) (Timestamp, error) {
	comps := make(map[string]int, len(d))
	for _, p := range d {
		if _, ok := granularityForKey(p.Key); !ok {
			continue
		}
		v, err := strconv.Atoi(p.Value)
		if err != nil {
			return Timestamp{}, errors.Errorf("descriptor %s: %s=%q is not a number", d, p.Key, p.Value)
		}
		comps[p.Key] = v
	}
	return TimestampFromComponents(comps)
}
