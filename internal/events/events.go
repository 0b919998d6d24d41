package events

import (
	"context"
	"time"

	"github.com/rzbill/ldes/internal/fragment"
)

// Kind identifies an event type on the wire.
type Kind string

const (
	KindBucketRelationCreated  Kind = "bucket.relation.created"
	KindLinearCachingTriggered Kind = "linear-caching.triggered"
	KindMemberBucketised       Kind = "member.bucketised"
	KindNewViewBucketised      Kind = "view.bucketised"
	KindPageRelationCreated    Kind = "page.relation.created"
	KindViewInitialized        Kind = "view.initialized"
	KindViewDeleted            Kind = "view.deleted"
)

// Event is implemented by every payload carried on the bus.
type Event interface {
	Kind() Kind
}

// Publisher emits events. Delivery to subscribers is asynchronous and at
// least once.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
}

// BucketRelationCreated carries a relation from one bucket's fragment to
// another's.
type BucketRelationCreated struct {
	View         fragment.ViewName     `json:"view"`
	FromBucketID int64                 `json:"fromBucketId"`
	ToBucketID   int64                 `json:"toBucketId"`
	From         fragment.Identifier   `json:"from"`
	Relation     fragment.TreeRelation `json:"relation"`
}

func (BucketRelationCreated) Kind() Kind { return KindBucketRelationCreated }

// LinearCachingTriggered tells consumers that a bucket's content is expected
// to settle at NextUpdate.
type LinearCachingTriggered struct {
	View       fragment.ViewName   `json:"view"`
	BucketID   int64               `json:"bucketId"`
	Fragment   fragment.Identifier `json:"fragment"`
	NextUpdate time.Time           `json:"nextUpdate"`
}

func (LinearCachingTriggered) Kind() Kind { return KindLinearCachingTriggered }

// MemberBucketised signals that members are waiting for pagination.
type MemberBucketised struct {
	View    fragment.ViewName `json:"view"`
	Members int               `json:"members"`
}

func (MemberBucketised) Kind() Kind { return KindMemberBucketised }

// NewViewBucketised signals the first bucketisation of a previously empty view.
type NewViewBucketised struct {
	View fragment.ViewName `json:"view"`
}

func (NewViewBucketised) Kind() Kind { return KindNewViewBucketised }

// PageRelationCreated carries a navigation relation between two pages.
type PageRelationCreated struct {
	View       fragment.ViewName     `json:"view"`
	FromPageID int64                 `json:"fromPageId"`
	ToPageID   int64                 `json:"toPageId"`
	From       fragment.Identifier   `json:"from"`
	Relation   fragment.TreeRelation `json:"relation"`
}

func (PageRelationCreated) Kind() Kind { return KindPageRelationCreated }

// ViewInitialized carries the pagination properties of a new view.
type ViewInitialized struct {
	View       fragment.ViewName `json:"view"`
	Pagination map[string]string `json:"pagination"`
}

func (ViewInitialized) Kind() Kind { return KindViewInitialized }

type ViewDeleted struct {
	View fragment.ViewName `json:"view"`
}

func (ViewDeleted) Kind() Kind { return KindViewDeleted }
