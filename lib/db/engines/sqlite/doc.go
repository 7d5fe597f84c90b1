// Package sqlite implements a disk based storage engine (db.Engine) on top of
// the pure Go SQLite driver modernc.org/sqlite.
//
// All maps are stored in one table kv(map, key, value) with the primary key
// (map, key). SQLite compares BLOBs with memcmp, so ORDER BY key gives the same
// order as bytes.Compare and forward and reverse seeks map directly to
// ascending and descending range queries. The table maps records the names of
// all maps.
//
// Iterators load pageSize rows per query and continue after the last key they
// have seen, so an open iterator never pins a connection of the pool. Values
// are scanned into memory owned by the handle.
//
// The database runs in WAL mode with a busy timeout, these pragmas are passed
// in the DSN so they apply to every connection of database/sql's pool.
package sqlite
