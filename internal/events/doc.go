// Package events defines the domain events exchanged between fragmentation,
// pagination and the fragment projection, and a durable Bus delivering them.
//
// Publishing appends to a Pebble-backed eventlog. Subscribers are named
// groups; each keeps a cursor in the log and resumes after it on restart, so
// handlers see every event at least once and must tolerate duplicates.
package events
