package testing

import (
	"github.com/ValentinKolb/dbpool/lib/db"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// CountingMap
// --------------------------------------------------------------------------

// CountingMap wraps a db.Map and counts the read calls that reach it. It is
// used to check that canceled commands never touch the storage.
type CountingMap struct {
	db.Map
	gets      atomic.Int64
	batches   atomic.Int64
	iterators atomic.Int64
	seeks     atomic.Int64
}

// NewCountingMap wraps m
func NewCountingMap(m db.Map) *CountingMap {
	return &CountingMap{Map: m}
}

func (c *CountingMap) Get(key []byte) (*db.Handle, error) {
	c.gets.Add(1)
	return c.Map.Get(key)
}

func (c *CountingMap) GetBatch(keys [][]byte) []db.Result {
	c.batches.Add(1)
	return c.Map.GetBatch(keys)
}

func (c *CountingMap) NewIterator() (db.Iterator, error) {
	c.iterators.Add(1)
	it, err := c.Map.NewIterator()
	if err != nil {
		return nil, err
	}
	return &countingIterator{Iterator: it, seeks: &c.seeks}, nil
}

// Gets returns the number of Get calls
func (c *CountingMap) Gets() int64 { return c.gets.Load() }

// Batches returns the number of GetBatch calls
func (c *CountingMap) Batches() int64 { return c.batches.Load() }

// Iterators returns the number of NewIterator calls
func (c *CountingMap) Iterators() int64 { return c.iterators.Load() }

// Seeks returns the number of Seek calls on iterators of this map
func (c *CountingMap) Seeks() int64 { return c.seeks.Load() }

// Calls returns the total number of storage reads (Get, GetBatch, Seek)
func (c *CountingMap) Calls() int64 {
	return c.gets.Load() + c.batches.Load() + c.seeks.Load()
}

type countingIterator struct {
	db.Iterator
	seeks *atomic.Int64
}

func (c *countingIterator) Seek(dir db.Direction, from []byte) bool {
	c.seeks.Add(1)
	return c.Iterator.Seek(dir, from)
}

// --------------------------------------------------------------------------
// GatedMap
// --------------------------------------------------------------------------

// GatedMap wraps a db.Map and blocks every Get and GetBatch until Open is
// called. Entered receives one value per call that reached the gate, which
// lets a test wait until a worker is busy.
type GatedMap struct {
	db.Map
	Entered chan struct{}

	gate     chan struct{}
	openOnce sync.Once
}

// NewGatedMap wraps m. Entered is buffered with the given capacity, calls
// block on it when the buffer is full.
func NewGatedMap(m db.Map, capacity int) *GatedMap {
	return &GatedMap{
		Map:     m,
		Entered: make(chan struct{}, capacity),
		gate:    make(chan struct{}),
	}
}

func (g *GatedMap) wait() {
	g.Entered <- struct{}{}
	<-g.gate
}

func (g *GatedMap) Get(key []byte) (*db.Handle, error) {
	g.wait()
	return g.Map.Get(key)
}

func (g *GatedMap) GetBatch(keys [][]byte) []db.Result {
	g.wait()
	return g.Map.GetBatch(keys)
}

// Open releases all blocked and future calls. Safe to call more than once.
func (g *GatedMap) Open() {
	g.openOnce.Do(func() {
		close(g.gate)
	})
}

// --------------------------------------------------------------------------
// FailingMap
// --------------------------------------------------------------------------

// FailingMap wraps a db.Map and returns Err for the configured keys instead
// of reading them. Other keys are read from the wrapped map. Iterators of a
// FailingMap with FailSeek set report Err after Seek.
type FailingMap struct {
	db.Map
	Err      error
	FailSeek bool
	keys     map[string]struct{}
}

// NewFailingMap wraps m, lookups of keys fail with err
func NewFailingMap(m db.Map, err error, keys ...string) *FailingMap {
	f := &FailingMap{Map: m, Err: err, keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		f.keys[k] = struct{}{}
	}
	return f
}

func (f *FailingMap) fails(key []byte) bool {
	_, ok := f.keys[string(key)]
	return ok
}

func (f *FailingMap) Get(key []byte) (*db.Handle, error) {
	if f.fails(key) {
		return nil, f.Err
	}
	return f.Map.Get(key)
}

func (f *FailingMap) GetBatch(keys [][]byte) []db.Result {
	results := f.Map.GetBatch(keys)
	for i, k := range keys {
		if f.fails(k) {
			if results[i].Handle != nil {
				_ = results[i].Handle.Release()
			}
			results[i] = db.Result{Err: f.Err}
		}
	}
	return results
}

func (f *FailingMap) NewIterator() (db.Iterator, error) {
	it, err := f.Map.NewIterator()
	if err != nil || !f.FailSeek {
		return it, err
	}
	return &failingIterator{Iterator: it, err: f.Err}, nil
}

// failingIterator is never valid after Seek and reports err
type failingIterator struct {
	db.Iterator
	err    error
	failed bool
}

func (f *failingIterator) Seek(db.Direction, []byte) bool {
	f.failed = true
	return false
}

func (f *failingIterator) Valid() bool { return !f.failed && f.Iterator.Valid() }

func (f *failingIterator) Error() error {
	if f.failed {
		return f.err
	}
	return f.Iterator.Error()
}
