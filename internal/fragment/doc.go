// Package fragment holds the identity model of the fragment tree: view
// names, fragment identifiers and their wire format, tree relations, and the
// Fragment aggregate with its Pebble repository.
//
// Identifiers serialize as
//
//	/<view>[?<key>=<value>(&<key>=<value>)*]
//
// Two identifiers are equal when they address the same view with the same
// set of pairs; Key gives the matching canonical string.
package fragment
