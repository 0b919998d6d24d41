package timebased

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/pkg/log"
)

// Sealer marks time-bucket fragments immutable once their window has passed.
type Sealer struct {
	buckets   fragmentation.BucketStore
	fragments fragment.Repository
	logger    log.Logger
	now       func() time.Time
}

func NewSealer(buckets fragmentation.BucketStore, fragments fragment.Repository, logger log.Logger) *Sealer {
	return &Sealer{buckets: buckets, fragments: fragments, logger: logger.With(log.Component("sealer")), now: time.Now}
}

// SealElapsed seals every still-mutable bucket fragment of view whose window
// ended at or before now and returns how many it sealed. Root and default
// buckets never seal.
func (s *Sealer) SealElapsed(ctx context.Context, view fragment.ViewName) (int, error) {
	buckets, err := s.buckets.ListByView(ctx, view)
	if err != nil {
		return 0, err
	}
	now := s.now()
	sealed := 0
	for _, b := range buckets {
		if b.IsRoot() || IsDefaultBucket(b) {
			continue
		}
		ts, err := TimestampOf(b.Descriptor)
		if err != nil || ts.LtBoundary().After(now) {
			continue
		}
		f, err := s.fragments.Retrieve(ctx, b.FragmentID())
		switch {
		case errors.Is(err, fragment.ErrNotFound):
		case err != nil:
			return sealed, err
		case f.Immutable:
			continue
		}
		if err := s.fragments.MakeImmutable(ctx, b.FragmentID()); err != nil {
			return sealed, err
		}
		sealed++
	}
	if sealed > 0 {
		s.logger.Debug("sealed elapsed buckets", log.Str("view", view.String()), log.Int("count", sealed))
	}
	return sealed, nil
}
