package internal

import (
	"bytes"
	"github.com/google/btree"
	"sync"
)

// degree of the b-tree nodes
const degree = 32

// --------------------------------------------------------------------------
// Entry Type (key-value pair)
// --------------------------------------------------------------------------

// Entry stores a key-value pair. Both slices are owned by the tree and never
// modified after insertion.
type Entry struct {
	Key   []byte
	Value []byte
}

func less(a, b Entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// --------------------------------------------------------------------------
// Tree Type (ordered data of one map)
// --------------------------------------------------------------------------

// Tree is an ordered key-value collection guarded by a read-write mutex
type Tree struct {
	mu    sync.RWMutex
	items *btree.BTreeG[Entry]
	bytes int
}

// NewTree creates an empty tree
func NewTree() *Tree {
	return &Tree{items: btree.NewG[Entry](degree, less)}
}

// Get returns the value stored for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.items.Get(Entry{Key: key})
	return e.Value, ok
}

// GetMany looks up all keys under a single read lock. fn is called for every
// key in order.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) GetMany(keys [][]byte, fn func(i int, value []byte, ok bool)) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, k := range keys {
		e, ok := t.items.Get(Entry{Key: k})
		fn(i, e.Value, ok)
	}
}

// Put stores a copy of key and value
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Put(key, value []byte) {
	e := Entry{
		Key:   bytes.Clone(key),
		Value: bytes.Clone(value),
	}
	if e.Value == nil {
		e.Value = []byte{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, replaced := t.items.ReplaceOrInsert(e); replaced {
		t.bytes -= len(old.Key) + len(old.Value)
	}
	t.bytes += len(e.Key) + len(e.Value)
}

// Delete removes key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Delete(key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.items.Delete(Entry{Key: key}); ok {
		t.bytes -= len(old.Key) + len(old.Value)
	}
}

// Snapshot returns a read-only copy of the tree. Later writes to t are not
// visible in the snapshot (copy on write).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Snapshot() *btree.BTreeG[Entry] {
	// Clone marks the shared nodes read-only, this is a write to t
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items.Clone()
}

// Stats returns the number of entries and their total size in bytes
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Stats() (count int, size int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.items.Len(), t.bytes
}

// EachValueSize calls fn with the size of every value
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) EachValueSize(fn func(size int)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.items.Ascend(func(e Entry) bool {
		fn(len(e.Value))
		return true
	})
}

// --------------------------------------------------------------------------
// Cursor (positioned walk over a snapshot)
// --------------------------------------------------------------------------

// Cursor walks a snapshot in either direction
type Cursor struct {
	items   *btree.BTreeG[Entry]
	current Entry
	valid   bool
}

// NewCursor creates an unpositioned cursor over a snapshot
func NewCursor(items *btree.BTreeG[Entry]) *Cursor {
	return &Cursor{items: items}
}

// First positions at the smallest key >= from (or the smallest key if from is nil)
func (c *Cursor) First(from []byte) bool {
	c.valid = false
	fn := func(e Entry) bool {
		c.current, c.valid = e, true
		return false
	}
	if from == nil {
		c.items.Ascend(fn)
	} else {
		c.items.AscendGreaterOrEqual(Entry{Key: from}, fn)
	}
	return c.valid
}

// Last positions at the largest key <= from (or the largest key if from is nil)
func (c *Cursor) Last(from []byte) bool {
	c.valid = false
	fn := func(e Entry) bool {
		c.current, c.valid = e, true
		return false
	}
	if from == nil {
		c.items.Descend(fn)
	} else {
		c.items.DescendLessOrEqual(Entry{Key: from}, fn)
	}
	return c.valid
}

// Next moves to the smallest key greater than the current one
func (c *Cursor) Next() bool {
	if !c.valid {
		return false
	}
	pivot := c.current
	c.valid = false
	c.items.AscendGreaterOrEqual(pivot, func(e Entry) bool {
		if bytes.Equal(e.Key, pivot.Key) {
			return true
		}
		c.current, c.valid = e, true
		return false
	})
	return c.valid
}

// Prev moves to the largest key smaller than the current one
func (c *Cursor) Prev() bool {
	if !c.valid {
		return false
	}
	pivot := c.current
	c.valid = false
	c.items.DescendLessOrEqual(pivot, func(e Entry) bool {
		if bytes.Equal(e.Key, pivot.Key) {
			return true
		}
		c.current, c.valid = e, true
		return false
	})
	return c.valid
}

// Valid reports whether the cursor is positioned
func (c *Cursor) Valid() bool {
	return c.valid
}

// Entry returns the current entry
func (c *Cursor) Entry() Entry {
	return c.current
}

// Reset drops the position and the snapshot
func (c *Cursor) Reset() {
	c.items = nil
	c.valid = false
	c.current = Entry{}
}
