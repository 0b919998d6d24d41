package pagination

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
	"github.com/rzbill/ldes/pkg/log"
)

// OpenPageProvider places members on the open page of their bucket, sealing
// full pages and opening successors as it goes.
type OpenPageProvider struct {
	pages     PageStore
	creator   *PageCreator
	cfg       Config
	fragments fragment.Repository
	logger    log.Logger
	locks     *keyedMutex[int64]
}

// NewOpenPageProvider wires a provider. fragments may be nil, in which case
// sealed pages are not reflected on their fragments.
func NewOpenPageProvider(pages PageStore, creator *PageCreator, cfg Config, fragments fragment.Repository, logger log.Logger) *OpenPageProvider {
	return &OpenPageProvider{
		pages:     pages,
		creator:   creator,
		cfg:       cfg,
		fragments: fragments,
		logger:    logger,
		locks:     newKeyedMutex[int64](),
	}
}

// outcome collects the pages sealed under the bucket lock. Their fragments
// are marked immutable once the lock is released.
type outcome struct {
	sealed []Page
}

// GetOpenPage returns the page of bucket currently accepting members,
// creating the first one when the bucket has none.
func (p *OpenPageProvider) GetOpenPage(ctx context.Context, bucket fragmentation.Bucket) (Page, error) {
	unlock := p.locks.Lock(bucket.ID)
	page, err := p.openPage(ctx, bucket)
	unlock()
	if ferr := p.flush(ctx, bucket, outcome{}); err == nil {
		err = ferr
	}
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// Assign places one member on the open page of bucket.
func (p *OpenPageProvider) Assign(ctx context.Context, bucket fragmentation.Bucket, memberID string) (PageAssignment, error) {
	as, err := p.AssignAll(ctx, bucket, []string{memberID})
	if err != nil {
		return PageAssignment{}, err
	}
	return as[0], nil
}

// AssignAll places members on pages of bucket in order. The whole call holds
// the bucket lock; page relations are published and seals applied after it is
// released, including relations a failed earlier call left staged.
func (p *OpenPageProvider) AssignAll(ctx context.Context, bucket fragmentation.Bucket, memberIDs []string) ([]PageAssignment, error) {
	var out outcome
	unlock := p.locks.Lock(bucket.ID)
	assignments, err := p.assignLocked(ctx, bucket, memberIDs, &out)
	unlock()
	// Pages created before a failure still need their links.
	if ferr := p.flush(ctx, bucket, out); err == nil {
		err = ferr
	}
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (p *OpenPageProvider) assignLocked(ctx context.Context, bucket fragmentation.Bucket, memberIDs []string, out *outcome) ([]PageAssignment, error) {
	page, err := p.openPage(ctx, bucket)
	if err != nil {
		return nil, err
	}
	assignments := make([]PageAssignment, 0, len(memberIDs))
	for _, id := range memberIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		index, ok, err := p.pages.IncrementIfBelow(ctx, page, p.cfg.MemberLimit)
		if err != nil {
			return nil, err
		}
		if !ok {
			if page, err = p.rollOver(ctx, page, out); err != nil {
				return nil, err
			}
			if index, ok, err = p.pages.IncrementIfBelow(ctx, page, p.cfg.MemberLimit); err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.Errorf("new page %d of bucket %d refused a member", page.Sequence, bucket.ID)
			}
		}
		page.Assigned = index
		assignments = append(assignments, PageAssignment{
			View:     bucket.View,
			PageID:   page.ID,
			BucketID: bucket.ID,
			Index:    index,
			MemberID: id,
		})
	}
	return assignments, nil
}

func (p *OpenPageProvider) openPage(ctx context.Context, bucket fragmentation.Bucket) (Page, error) {
	page, found, err := p.pages.Open(ctx, bucket.View, bucket.ID)
	if err != nil || found {
		return page, err
	}
	// No open page: either a fresh bucket, or a seal whose successor was
	// never created.
	existing, err := p.pages.ListByBucket(ctx, bucket.View, bucket.ID)
	if err != nil {
		return Page{}, err
	}
	if len(existing) == 0 {
		return p.creator.CreateFirst(ctx, bucket)
	}
	last := existing[len(existing)-1]
	if !last.Immutable {
		return last, nil
	}
	return p.creator.CreateNext(ctx, last)
}

func (p *OpenPageProvider) rollOver(ctx context.Context, full Page, out *outcome) (Page, error) {
	sealed, err := p.pages.SealIfOpen(ctx, full)
	if err != nil {
		return Page{}, err
	}
	if sealed {
		full.Immutable = true
		out.sealed = append(out.sealed, full)
	}
	next, err := p.creator.CreateNext(ctx, full)
	if err != nil {
		return Page{}, err
	}
	p.logger.Debug("page sealed",
		log.Str("view", full.View.String()), log.Int64("bucket", full.BucketID), log.Int64("sequence", full.Sequence))
	return next, nil
}

func (p *OpenPageProvider) flush(ctx context.Context, bucket fragmentation.Bucket, out outcome) error {
	err := p.creator.Publish(ctx, bucket.View, bucket.ID)
	if p.fragments == nil {
		return err
	}
	for _, sp := range out.sealed {
		if serr := p.fragments.MakeImmutable(ctx, sp.FragmentID()); serr != nil && err == nil {
			err = errors.Wrapf(serr, "seal fragment of page %d", sp.ID)
		}
	}
	return err
}
