package db

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplPebble Implementation = "pebble"
	ImplSQLite Implementation = "sqlite"
)

// Direction of an ordered iteration
type Direction int

const (
	Forward Direction = iota // ascending key order
	Reverse                  // descending key order
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes  int            `json:"size_bytes"`
	DbType     Implementation `json:"db_type"`
	Maps       []string       `json:"maps"`
	OpenLeases int64          `json:"open_leases"`
	Metadata   interface{}    `json:"metadata"`
}

var (
	// ErrNotFound is returned for a key that has no value. It is an outcome
	// of a lookup, not a failure of the engine.
	ErrNotFound = errors.New("db: key not found")

	// ErrClosed is returned by every operation on a closed engine
	ErrClosed = errors.New("db: engine closed")

	// ErrLeaked is returned by Engine.Close if handles or iterators are still open
	ErrLeaked = errors.New("db: engine closed with open handles")
)

// --------------------------------------------------------------------------
// Leases
// --------------------------------------------------------------------------

// Tracker counts the handles and iterators that are bound to the lifetime of
// an engine. Every engine owns one tracker and checks it in Close.
//
// Thread-safety: All methods are safe for concurrent use.
type Tracker struct {
	open atomic.Int64
}

// Lease is a single entry in a Tracker. Release is idempotent.
type Lease struct {
	t        *Tracker
	released atomic.Bool
}

// Acquire registers a new lease
func (t *Tracker) Acquire() *Lease {
	t.open.Add(1)
	return &Lease{t: t}
}

// Open returns the number of leases not yet released
func (t *Tracker) Open() int64 {
	return t.open.Load()
}

// Check returns ErrLeaked (wrapped with the count) if leases are still open
func (t *Tracker) Check() error {
	if n := t.open.Load(); n > 0 {
		return fmt.Errorf("%w: %d open", ErrLeaked, n)
	}
	return nil
}

// Release returns the lease to its tracker. It reports whether this call did
// the release.
func (l *Lease) Release() bool {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return false
	}
	l.t.open.Add(-1)
	return true
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle is a value returned by a lookup. The bytes may point into memory
// owned by the engine (zero copy) and are only valid until Release is called.
// A handle must be released before the engine that produced it is closed.
type Handle struct {
	data   []byte
	closer io.Closer
	lease  *Lease
}

// NewHandle creates a handle over data. closer is optional and is called once
// on Release (e.g. to return a buffer to the engine).
func NewHandle(data []byte, closer io.Closer, lease *Lease) *Handle {
	return &Handle{data: data, closer: closer, lease: lease}
}

// Bytes returns the value. The slice must not be used after Release.
func (h *Handle) Bytes() []byte {
	return h.data
}

// String returns a copy of the value as string
func (h *Handle) String() string {
	return string(h.data)
}

// Release ends the lease of the handle. Safe to call more than once.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	if h.lease != nil && !h.lease.Release() {
		return nil
	}
	h.data = nil
	if h.closer != nil {
		c := h.closer
		h.closer = nil
		return c.Close()
	}
	return nil
}

// Result is the outcome for one key of a batched lookup. Exactly one of
// Handle and Err is set.
type Result struct {
	Handle *Handle
	Err    error
}

// Found reports whether the key had a value
func (r Result) Found() bool {
	return r.Err == nil && r.Handle != nil
}

// ReleaseAll releases every handle in results
func ReleaseAll(results []Result) {
	for i := range results {
		if results[i].Handle != nil {
			_ = results[i].Handle.Release()
		}
	}
}

// --------------------------------------------------------------------------
// Storage Interfaces
// --------------------------------------------------------------------------

// Engine is a key-value storage engine holding any number of named maps.
//
// Thread-safety: All methods must be safe for concurrent use. Close must only
// be called after all users of the engine have stopped.
type Engine interface {
	// Open returns the map with the given name, creating it if needed.
	// Opening the same name twice returns the same map.
	Open(name string) (m Map, err error)

	// Names returns the names of all maps in ascending order
	Names() (names []string)

	// Info returns information about the engine. Size figures may be estimated.
	Info() (info DatabaseInfo)

	// Close releases the engine. It returns ErrLeaked if handles or iterators
	// produced by the engine are still open.
	Close() (err error)
}

// Map is a named, ordered key-value collection inside an engine.
// All calls may block on disk I/O.
//
// Thread-safety: All methods must be safe for concurrent use.
type Map interface {
	// Name returns the name of the map
	Name() string

	// Get returns the value of key or ErrNotFound
	Get(key []byte) (h *Handle, err error)

	// GetBatch looks up all keys. The result has the same length and order as
	// keys, missing keys carry ErrNotFound.
	GetBatch(keys [][]byte) (results []Result)

	// NewIterator creates an unpositioned iterator. It is initialised by Seek.
	NewIterator() (it Iterator, err error)

	// Put inserts or overwrites the value of key
	Put(key, value []byte) (err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) (err error)
}

// Iterator walks a map in key order.
//
// Thread-safety: An iterator must only be used by one goroutine at a time,
// it may be handed over between goroutines.
type Iterator interface {
	// Seek positions the iterator. Forward starts at the first key >= from,
	// Reverse at the last key <= from. A nil from starts at the first (Forward)
	// or last (Reverse) key. Returns Valid().
	Seek(dir Direction, from []byte) bool

	// Valid reports whether the iterator is positioned at an entry
	Valid() bool

	// Key and Value return the current entry. Only valid until the next call
	// to Seek, Next or Close.
	Key() []byte
	Value() []byte

	// Next moves one step in the seek direction. Returns Valid().
	Next() bool

	// Error returns the first error encountered by the iterator
	Error() error

	// Close releases the iterator. Safe to call more than once.
	Close() error
}
