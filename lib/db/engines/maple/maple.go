package maple

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/ValentinKolb/dbpool/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dbpool/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
	"sync/atomic"
)

var Logger = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Core Maple engine structure
// --------------------------------------------------------------------------

// mapleImpl is an in-memory engine holding one b-tree per named map
type mapleImpl struct {
	maps    *xsync.MapOf[string, *mapleMap]
	tracker db.Tracker
	closed  atomic.Bool
}

// mapleMap implements db.Map on top of an internal.Tree
type mapleMap struct {
	name   string
	tree   *internal.Tree
	engine *mapleImpl
}

// Metadata is reported in db.DatabaseInfo.Metadata
type Metadata struct {
	Entries       map[string]int         `json:"entries"`
	MapSizes      util.DistributionStats `json:"map_sizes"`
	ValueMedian   int                    `json:"value_median_bytes"`
	ValueP90      int                    `json:"value_p90_bytes"`
	ValueAverage  int                    `json:"value_average_bytes"`
	ValuesSampled int64                  `json:"values_sampled"`
}

// --------------------------------------------------------------------------
// Initialization
// --------------------------------------------------------------------------

// NewMapleDB creates an empty in-memory engine
//
// Thread-safety: The returned engine is safe for concurrent use.
func NewMapleDB() db.Engine {
	return &mapleImpl{
		maps: xsync.NewMapOf[string, *mapleMap](),
	}
}

// --------------------------------------------------------------------------
// db.Engine
// --------------------------------------------------------------------------

// Open returns the map with the given name, creating it if needed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Open(name string) (db.Map, error) {
	if maple.closed.Load() {
		return nil, db.ErrClosed
	}
	m, loaded := maple.maps.LoadOrCompute(name, func() *mapleMap {
		return &mapleMap{name: name, tree: internal.NewTree(), engine: maple}
	})
	if !loaded {
		Logger.Debugf("maple: created map %q", name)
	}
	return m, nil
}

// Names returns the names of all maps in ascending order
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Names() []string {
	names := make([]string, 0, maple.maps.Size())
	maple.maps.Range(func(name string, _ *mapleMap) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Info returns the size of the engine and statistics about the stored values.
// All maps are scanned for the value size histogram, so this call is expensive.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Info() db.DatabaseInfo {
	var (
		names     = maple.Names()
		meta      = Metadata{Entries: make(map[string]int, len(names))}
		hist      = util.NewSizeHistogram()
		sizes     = make([]float64, 0, len(names))
		sizeBytes int
	)

	for _, name := range names {
		m, ok := maple.maps.Load(name)
		if !ok {
			continue
		}
		count, size := m.tree.Stats()
		meta.Entries[name] = count
		sizes = append(sizes, float64(count))
		sizeBytes += size
		m.tree.EachValueSize(hist.AddSample)
	}

	meta.MapSizes = util.NewDistributionStats(sizes)
	meta.ValueMedian = hist.MedianEstimate()
	meta.ValueP90 = hist.GetPercentileEstimate(90)
	meta.ValueAverage = hist.AverageSize()
	meta.ValuesSampled = hist.GetCount()

	return db.DatabaseInfo{
		SizeBytes:  sizeBytes,
		DbType:     db.ImplMaple,
		Maps:       names,
		OpenLeases: maple.tracker.Open(),
		Metadata:   meta,
	}
}

// Close drops all data. It fails with db.ErrLeaked if handles or iterators
// are still open, the data is dropped anyway.
//
// Thread-safety: This method must only be called once, after all users stopped.
func (maple *mapleImpl) Close() error {
	if !maple.closed.CompareAndSwap(false, true) {
		return nil
	}
	maple.maps.Clear()

	if err := maple.tracker.Check(); err != nil {
		Logger.Errorf("maple: %v", err)
		return fmt.Errorf("maple: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// db.Map
// --------------------------------------------------------------------------

func (m *mapleMap) Name() string {
	return m.name
}

// newHandle copies the value, the caller gets memory it owns
func (m *mapleMap) newHandle(value []byte) *db.Handle {
	return db.NewHandle(bytes.Clone(value), nil, m.engine.tracker.Acquire())
}

// Get returns a copy of the value for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *mapleMap) Get(key []byte) (*db.Handle, error) {
	if m.engine.closed.Load() {
		return nil, db.ErrClosed
	}
	value, ok := m.tree.Get(key)
	if !ok {
		return nil, db.ErrNotFound
	}
	return m.newHandle(value), nil
}

// GetBatch looks up all keys under one read lock
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *mapleMap) GetBatch(keys [][]byte) []db.Result {
	results := make([]db.Result, len(keys))
	if m.engine.closed.Load() {
		for i := range results {
			results[i].Err = db.ErrClosed
		}
		return results
	}

	m.tree.GetMany(keys, func(i int, value []byte, ok bool) {
		if !ok {
			results[i].Err = db.ErrNotFound
			return
		}
		results[i].Handle = m.newHandle(value)
	})
	return results
}

// NewIterator creates an iterator. The snapshot is taken on Seek.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *mapleMap) NewIterator() (db.Iterator, error) {
	if m.engine.closed.Load() {
		return nil, db.ErrClosed
	}
	return &mapleIterator{m: m, lease: m.engine.tracker.Acquire()}, nil
}

// Put stores a copy of key and value
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *mapleMap) Put(key, value []byte) error {
	if m.engine.closed.Load() {
		return db.ErrClosed
	}
	m.tree.Put(key, value)
	return nil
}

// Delete removes key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *mapleMap) Delete(key []byte) error {
	if m.engine.closed.Load() {
		return db.ErrClosed
	}
	m.tree.Delete(key)
	return nil
}

// --------------------------------------------------------------------------
// db.Iterator
// --------------------------------------------------------------------------

// mapleIterator walks a copy on write snapshot taken by Seek, writes after the
// seek are not visible.
type mapleIterator struct {
	m      *mapleMap
	lease  *db.Lease
	cursor *internal.Cursor
	dir    db.Direction
	err    error
	closed bool
}

func (it *mapleIterator) Seek(dir db.Direction, from []byte) bool {
	if it.closed {
		return false
	}
	if it.m.engine.closed.Load() {
		it.err = db.ErrClosed
		return false
	}

	it.dir = dir
	it.cursor = internal.NewCursor(it.m.tree.Snapshot())
	if dir == db.Reverse {
		return it.cursor.Last(from)
	}
	return it.cursor.First(from)
}

func (it *mapleIterator) Valid() bool {
	return !it.closed && it.cursor != nil && it.cursor.Valid()
}

func (it *mapleIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.cursor.Entry().Key
}

func (it *mapleIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.cursor.Entry().Value
}

func (it *mapleIterator) Next() bool {
	if !it.Valid() {
		return false
	}
	if it.dir == db.Reverse {
		return it.cursor.Prev()
	}
	return it.cursor.Next()
}

func (it *mapleIterator) Error() error {
	return it.err
}

func (it *mapleIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.cursor != nil {
		it.cursor.Reset()
	}
	it.lease.Release()
	return nil
}
