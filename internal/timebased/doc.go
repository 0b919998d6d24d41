// Package timebased implements hierarchical time-based fragmentation.
//
// A member's timestamp is rendered at each granularity from year down to the
// configured maximum; every step gets or creates one child bucket and, on
// creation, publishes the half-open [GTE, LT) relation pair from the parent.
// Members whose subject fails the filter land in the "unknown" default
// bucket under the root, linked by a single generic relation.
//
// Example: view v1, maxGranularity=month, timestamp 2023-06-15T10:00:00
// yields /v1 -> /v1?year=2023 -> /v1?year=2023&month=06 with relations
//
//	GTE 2023-01-01T00:00:00, LT 2024-01-01T00:00:00
//	GTE 2023-06-01T00:00:00, LT 2023-07-01T00:00:00
package timebased
