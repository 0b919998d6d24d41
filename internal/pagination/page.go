package pagination

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/fragmentation"
)

// ErrInvalidConfig marks unusable pagination properties.
var ErrInvalidConfig = errors.New("invalid pagination config")

// ErrPageNotFound is returned for unknown pages.
var ErrPageNotFound = errors.New("page not found")

// PageNumberKey is the pair key that addresses a page below its bucket.
const PageNumberKey = "pageNumber"

const (
	PropMemberLimit            = "memberLimit"
	PropBidirectionalRelations = "bidirectionalRelations"
)

// Config is the parsed pagination property set of a view.
type Config struct {
	MemberLimit            int
	BidirectionalRelations bool
}

// ParseConfig reads memberLimit (required, > 0) and bidirectionalRelations
// (default true).
func ParseConfig(props map[string]string) (Config, error) {
	cfg := Config{BidirectionalRelations: true}
	raw, ok := props[PropMemberLimit]
	if !ok {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "%s is required", PropMemberLimit)
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "%s must be a positive integer, got %q", PropMemberLimit, raw)
	}
	cfg.MemberLimit = limit
	if raw, ok := props[PropBidirectionalRelations]; ok && raw != "" {
		if cfg.BidirectionalRelations, err = strconv.ParseBool(raw); err != nil {
			return Config{}, errors.Wrapf(ErrInvalidConfig, "%s %q", PropBidirectionalRelations, raw)
		}
	}
	return cfg, nil
}

// Page is a capacity-bounded, sequenced container of members in a bucket.
type Page struct {
	ID        int64                    `json:"id"`
	View      fragment.ViewName        `json:"view"`
	BucketID  int64                    `json:"bucketId"`
	Sequence  int64                    `json:"sequence"`
	Path      fragmentation.Descriptor `json:"path,omitempty"`
	Capacity  int                      `json:"capacity"`
	Assigned  int                      `json:"assigned"`
	Immutable bool                     `json:"immutable"`
}

// IsOpen reports whether the page still accepts members.
func (p Page) IsOpen() bool { return !p.Immutable && p.Assigned < p.Capacity }

// FragmentID is the bucket's identifier plus pageNumber=<sequence>.
func (p Page) FragmentID() fragment.Identifier {
	pair := fragment.Pair{Key: PageNumberKey, Value: strconv.FormatInt(p.Sequence, 10)}
	return fragment.NewIdentifier(p.View, p.Path.With(pair)...)
}

// PageAssignment places one member at a 1-based index of a page.
type PageAssignment struct {
	View     fragment.ViewName `json:"view"`
	PageID   int64             `json:"pageId"`
	BucketID int64             `json:"bucketId"`
	Index    int               `json:"index"`
	MemberID string            `json:"memberId"`
}
