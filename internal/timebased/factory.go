package timebased

import (
	"github.com/rzbill/ldes/internal/events"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/internal/metrics"
	"github.com/rzbill/ldes/pkg/log"
)

// Build parses props and assembles a Strategy wrapping wrapped.
func Build(props map[string]string, wrapped fragmentation.Strategy, store fragmentation.BucketStore, outbox *events.Outbox, m *metrics.Metrics, logger log.Logger) (*Strategy, error) {
	cfg, err := ParseConfig(props)
	if err != nil {
		return nil, err
	}
	logger = logger.With(log.Component(StrategyName))
	creator := NewBucketCreator(store, NewRelationsAttributer(outbox, cfg), m, logger)
	return NewStrategy(wrapped, NewBucketFinder(creator, cfg)), nil
}
