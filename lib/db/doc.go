// Package db defines the contracts between the dispatch pool and the storage
// engines behind it. The pool never talks to a concrete engine, it only sees
// the interfaces of this package.
//
// Key Components:
//
//   - Engine: Owns the storage and any number of named maps. Opening a name
//     twice returns the same map. Close releases the storage and must be
//     called last, after every producer of engine work has stopped.
//
//   - Map: A named, ordered key-value collection with point lookups (Get),
//     batched lookups (GetBatch), ordered iteration (NewIterator) and writes.
//     Every call may block on disk I/O, which is why reads are executed on the
//     workers of the dispatch pool and not on the calling goroutine.
//
//   - Iterator: Walks a map forward or in reverse. An iterator is created
//     unpositioned and initialised by Seek. A reverse seek with a start key
//     positions at the last key less than or equal to that key.
//
//   - Handle: A value returned by a lookup. Engines may return memory they own
//     (e.g. a pebble buffer) without copying it. Such a handle is only valid
//     while the engine is open and must be released exactly once.
//
//   - Tracker / Lease: Every handle and iterator holds a lease in the tracker
//     of its engine. Engine.Close reports ErrLeaked if leases are still open,
//     which turns a violation of the lifetime rules into an error instead of
//     a use after free.
//
// Error Handling:
//
//	ErrNotFound is an outcome of a lookup and travels inside a Result. Storage
//	errors are returned unchanged so callers can inspect them with errors.Is.
package db
