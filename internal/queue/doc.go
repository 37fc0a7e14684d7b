// Package queue owns the transfer tree and its persistence.
//
// The Tree is an arena of nodes keyed by ID: the root owns packages, packages
// own transfers, and parent/child links are IDs into the arena. Structural
// operations (append, move, remove, find) and package status aggregation live
// here; every mutation is reported through the Change notifier so observers can
// follow the tree without polling.
//
// The Tree is not safe for concurrent use. The workflow manager owns it from a
// single goroutine and serializes every command and callback through it.
//
// Store persists ordered snapshots of the tree in SQLite. Schema changes bump
// the version in schema.go; users clear the database to adopt the new schema.
package queue
