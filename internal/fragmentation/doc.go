// Package fragmentation turns members into bucketised members.
//
// A view owns a chain of Strategy values, outermost first, ending in Leaf.
// Service runs the chain for each member starting at the view's root bucket
// and stores one pending BucketisedMember per bucket reached. Buckets are
// written only through BucketStore.InsertIfAbsent, so concurrent callers
// agree on a single bucket per (view, descriptor).
package fragmentation
