package pagination

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/pkg/log"
)

// PageCreator is the only writer of new pages. The relations a new page
// implies are staged in the outbox with the page itself; Publish emits them,
// so callers can do that after releasing their locks.
type PageCreator struct {
	sequences SequenceStore
	pages     PageStore
	outbox    *events.Outbox
	cfg       Config
	metrics   *metrics.Metrics
	logger    log.Logger
}

func NewPageCreator(sequences SequenceStore, pages PageStore, outbox *events.Outbox, cfg Config, m *metrics.Metrics, logger log.Logger) *PageCreator {
	return &PageCreator{sequences: sequences, pages: pages, outbox: outbox, cfg: cfg, metrics: m, logger: logger}
}

// CreateFirst opens the first page of bucket and links the bucket's fragment
// to it.
func (c *PageCreator) CreateFirst(ctx context.Context, bucket fragmentation.Bucket) (Page, error) {
	return c.create(ctx, bucket.View, bucket.ID, bucket.Descriptor, func(p Page) []events.Event {
		return []events.Event{events.PageRelationCreated{
			View:     p.View,
			ToPageID: p.ID,
			From:     bucket.FragmentID(),
			Relation: fragment.GenericRelation(p.FragmentID()),
		}}
	})
}

// CreateNext opens the successor of prev. prev is linked to the new page, and
// the new page back to prev when relations are bidirectional.
func (c *PageCreator) CreateNext(ctx context.Context, prev Page) (Page, error) {
	return c.create(ctx, prev.View, prev.BucketID, prev.Path, func(p Page) []events.Event {
		evs := []events.Event{events.PageRelationCreated{
			View:       p.View,
			FromPageID: prev.ID,
			ToPageID:   p.ID,
			From:       prev.FragmentID(),
			Relation:   fragment.GenericRelation(p.FragmentID()),
		}}
		if c.cfg.BidirectionalRelations {
			evs = append(evs, events.PageRelationCreated{
				View:       p.View,
				FromPageID: p.ID,
				ToPageID:   prev.ID,
				From:       p.FragmentID(),
				Relation:   fragment.GenericRelation(prev.FragmentID()),
			})
		}
		return evs
	})
}

// Publish emits every page relation of bucket still waiting in the outbox,
// in page order.
func (c *PageCreator) Publish(ctx context.Context, view fragment.ViewName, bucketID int64) error {
	return errors.Wrapf(c.outbox.FlushPrefix(ctx, view, linksPrefix(bucketID)), "publish page relations of bucket %d", bucketID)
}

func linksPrefix(bucketID int64) string { return fmt.Sprintf("pg/%016x/", bucketID) }

func linksKey(p Page) string { return fmt.Sprintf("%s%016x", linksPrefix(p.BucketID), p.Sequence) }

func (c *PageCreator) create(ctx context.Context, view fragment.ViewName, bucketID int64, path fragmentation.Descriptor, links func(Page) []events.Event) (Page, error) {
	seq, err := c.sequences.AllocateNext(ctx, view, bucketID)
	if err != nil {
		return Page{}, err
	}
	p, err := c.pages.Insert(ctx, Page{
		View:     view,
		BucketID: bucketID,
		Sequence: seq,
		Path:     path,
		Capacity: c.cfg.MemberLimit,
	}, func(b *pebble.Batch, inserted Page) error {
		return c.outbox.Stage(b, view, linksKey(inserted), links(inserted)...)
	})
	if err != nil {
		return Page{}, err
	}
	c.metrics.PageCreated(view.String())
	c.logger.Debug("page created",
		log.Str("view", view.String()), log.Int64("bucket", bucketID), log.Int64("sequence", seq), log.Int64("page", p.ID))
	return p, nil
}
