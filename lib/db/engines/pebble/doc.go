// Package pebble implements a disk based storage engine (db.Engine) on top of
// cockroachdb/pebble.
//
// All maps share a single pebble instance. The data of a map lives under the
// key prefix 'd' <name> 0x00, a marker key 'n' <name> records that the map
// exists so Names works after a restart. Iterators are bounded to the prefix
// of their map with IterOptions, so a scan never leaves its map.
//
// Get returns the value buffer of pebble without copying it. The io.Closer
// returned by pebble is stored in the db.Handle and called on Release. Such a
// handle must be released before the engine is closed, which is why the
// dispatch pool is always shut down before the engine (see package store).
package pebble
