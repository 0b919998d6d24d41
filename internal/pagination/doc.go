// Package pagination sequences the members of every bucket into pages of a
// fixed capacity.
//
// Each bucket owns a page sequence starting at 1. The OpenPageProvider claims
// a slot on the bucket's open page with an increment-if-below-limit update;
// when the page is full it seals it, has the PageCreator open the next
// sequence and links the two pages with generic relations (both ways when
// bidirectionalRelations is set). Relation events are staged in the outbox in
// the batch that writes the page and published after the bucket lock is
// released; a failed publish is retried by the next assignment of the bucket
// or the runtime's periodic outbox flush.
//
// A Pipeline drains a view's pending bucketised members per bucket in
// parallel, writing assignments and consuming the pending rows in one Pebble
// batch. The Service keeps one Pipeline per initialized view and reacts to
// view lifecycle and bucketisation events from the bus.
//
// Delivery is at least once: a chunk whose write fails is assigned again on
// retry, which can leave unused slots on a page but never exceeds capacity.
package pagination
