// Package maple implements an in-memory storage engine (db.Engine) with one
// ordered b-tree per named map. It is the default engine of the module: it
// needs no data directory and is used by the tests of the dispatch pool.
//
// Key Components:
//
//   - mapleImpl: The engine. Maps are kept in a lock-free registry
//     (xsync.MapOf) and created on first Open. Close drops all data and checks
//     the lease tracker for handles or iterators that were never released.
//
//   - internal.Tree: A google/btree ordered by key, guarded by a read-write
//     mutex. Keys and values are copied on insertion and never modified
//     afterwards. Batched lookups take the read lock once for all keys.
//
//   - mapleIterator: Iteration works on a copy on write snapshot of the tree
//     (btree.Clone), taken when the iterator is positioned by Seek. A long
//     running scan therefore never blocks writers and never sees their writes.
//
// Handles returned by Get and GetBatch own a copy of the value. They are
// still registered with the tracker of the engine, so the lifetime rules of
// the db package apply to maple the same way they apply to disk engines.
//
// Info scans every map to build a value size histogram (util.SizeHistogram)
// and reports the distribution of entries across maps.
package maple
