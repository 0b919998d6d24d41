// Package projection materializes fragments from relation events, so the
// fragment tree readers traverse follows the buckets and pages written by
// fragmentation and pagination.
package projection

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/pkg/log"
)

// Group is the bus subscriber group of the projector.
const Group = "fragment-projection"

// Projector applies relation and caching events to a fragment repository.
// Relations are appended as delivered, so a redelivered event adds a
// duplicate edge.
type Projector struct {
	fragments fragment.Repository
	logger    log.Logger
}

func NewProjector(fragments fragment.Repository, logger log.Logger) *Projector {
	return &Projector{fragments: fragments, logger: logger.With(log.Component("projection"))}
}

// Kinds lists the event kinds Handle applies.
func Kinds() []events.Kind {
	return []events.Kind{
		events.KindBucketRelationCreated,
		events.KindPageRelationCreated,
		events.KindLinearCachingTriggered,
		events.KindViewDeleted,
	}
}

// Handle is an events.Handler.
func (p *Projector) Handle(ctx context.Context, env events.Envelope) error {
	switch ev := env.Event.(type) {
	case events.BucketRelationCreated:
		return p.relate(ctx, ev.From, ev.Relation)
	case events.PageRelationCreated:
		return p.relate(ctx, ev.From, ev.Relation)
	case events.LinearCachingTriggered:
		return errors.Wrapf(p.fragments.SetNextUpdate(ctx, ev.Fragment, ev.NextUpdate), "set next update of %s", ev.Fragment)
	case events.ViewDeleted:
		if err := p.fragments.DeleteView(ctx, ev.View); err != nil {
			return errors.Wrapf(err, "delete fragments of %s", ev.View)
		}
		p.logger.Info("fragments deleted", log.Str("view", ev.View.String()))
	}
	return nil
}

func (p *Projector) relate(ctx context.Context, from fragment.Identifier, r fragment.TreeRelation) error {
	if _, _, err := p.fragments.InsertIfAbsent(ctx, fragment.New(r.Node)); err != nil {
		return errors.Wrapf(err, "ensure fragment %s", r.Node)
	}
	if err := p.fragments.AddRelation(ctx, from, r); err != nil {
		return errors.Wrapf(err, "relate %s to %s", from, r.Node)
	}
	p.logger.Debug("relation projected", log.Str("from", from.String()), log.Str("to", r.Node.String()), log.Str("kind", string(r.Kind)))
	return nil
}
