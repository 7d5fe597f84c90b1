package pebble

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
	"strings"
	"sync/atomic"
)

var Logger = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

// All maps share one pebble instance. Keys are prefixed to separate them:
//
//	'd' <map name> 0x00 <key>  data of a map
//	'n' <map name>             marker, the map exists
const (
	prefixData byte = 'd'
	prefixName byte = 'n'
	separator  byte = 0x00
)

// dataPrefix returns the prefix of all data keys of a map
func dataPrefix(name string) []byte {
	p := make([]byte, 0, len(name)+2)
	p = append(p, prefixData)
	p = append(p, name...)
	return append(p, separator)
}

// upperBound returns the smallest key greater than every key with the prefix
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	end[len(end)-1]++
	return end
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Options configures the pebble engine
type Options struct {
	// Path is the data directory
	Path string
	// FS overrides the filesystem (e.g. vfs.NewMem() in tests). nil = disk
	FS vfs.FS
	// Sync makes every write durable before it returns
	Sync bool
}

type pebbleImpl struct {
	pdb       *pebble.DB
	maps      *xsync.MapOf[string, *pebbleMap]
	tracker   db.Tracker
	writeOpts *pebble.WriteOptions
	closed    atomic.Bool
}

type pebbleMap struct {
	name   string
	prefix []byte
	upper  []byte
	engine *pebbleImpl
}

// pebbleLogger forwards pebble's log output to the engine logger
type pebbleLogger struct {
	l logger.ILogger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debugf("pebble: "+format, args...)
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Panicf("pebble: "+format, args...)
}

// Open opens (or creates) a pebble database and loads the names of all maps
// stored in it.
func Open(opts Options) (db.Engine, error) {
	pOpts := &pebble.Options{
		FS:     opts.FS,
		Logger: pebbleLogger{l: Logger},
	}
	if pOpts.FS == nil {
		pOpts.FS = vfs.Default
	}

	pdb, err := pebble.Open(opts.Path, pOpts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.Path, err)
	}

	e := &pebbleImpl{
		pdb:       pdb,
		maps:      xsync.NewMapOf[string, *pebbleMap](),
		writeOpts: pebble.NoSync,
	}
	if opts.Sync {
		e.writeOpts = pebble.Sync
	}

	// load existing map names
	it := pdb.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixName},
		UpperBound: []byte{prefixName + 1},
	})
	for valid := it.First(); valid; valid = it.Next() {
		name := string(it.Key()[1:])
		e.maps.Store(name, e.newMap(name))
	}
	if err := multierror.Append(it.Error(), it.Close()).ErrorOrNil(); err != nil {
		_ = pdb.Close()
		return nil, fmt.Errorf("pebble: loading map names: %w", err)
	}

	Logger.Infof("pebble: opened %s with %d maps", opts.Path, e.maps.Size())
	return e, nil
}

func (e *pebbleImpl) newMap(name string) *pebbleMap {
	prefix := dataPrefix(name)
	return &pebbleMap{
		name:   name,
		prefix: prefix,
		upper:  upperBound(prefix),
		engine: e,
	}
}

// Open returns the map with the given name, creating it if needed.
// Map names must not contain a 0x00 byte.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *pebbleImpl) Open(name string) (db.Map, error) {
	if e.closed.Load() {
		return nil, db.ErrClosed
	}
	if strings.IndexByte(name, separator) >= 0 {
		return nil, fmt.Errorf("pebble: invalid map name %q", name)
	}
	if m, ok := e.maps.Load(name); ok {
		return m, nil
	}

	var err error
	m, _ := e.maps.LoadOrCompute(name, func() *pebbleMap {
		err = e.pdb.Set(append([]byte{prefixName}, name...), nil, e.writeOpts)
		return e.newMap(name)
	})
	if err != nil {
		e.maps.Delete(name)
		return nil, fmt.Errorf("pebble: create map %q: %w", name, err)
	}
	return m, nil
}

// Names returns the names of all maps in ascending order
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *pebbleImpl) Names() []string {
	names := make([]string, 0, e.maps.Size())
	e.maps.Range(func(name string, _ *pebbleMap) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Info reports the disk usage of the database
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *pebbleImpl) Info() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:     db.ImplPebble,
		Maps:       e.Names(),
		OpenLeases: e.tracker.Open(),
	}
	if e.closed.Load() {
		return info
	}

	m := e.pdb.Metrics()
	info.SizeBytes = int(m.DiskSpaceUsage())
	info.Metadata = map[string]interface{}{
		"memtable_size":  m.MemTable.Size,
		"memtable_count": m.MemTable.Count,
		"wal_size":       m.WAL.Size,
		"compactions":    m.Compact.Count,
	}
	return info
}

// Close closes the pebble instance. Handles and iterators still open are
// reported as db.ErrLeaked.
//
// Thread-safety: This method must only be called once, after all users stopped.
func (e *pebbleImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if err := e.tracker.Check(); err != nil {
		Logger.Errorf("pebble: %v", err)
		result = multierror.Append(result, err)
	}
	if err := e.pdb.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("pebble: close: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// db.Map
// --------------------------------------------------------------------------

func (m *pebbleMap) Name() string {
	return m.name
}

func (m *pebbleMap) key(k []byte) []byte {
	out := make([]byte, 0, len(m.prefix)+len(k))
	out = append(out, m.prefix...)
	return append(out, k...)
}

// Get returns the value without copying it. The handle keeps the pebble
// buffer alive until it is released.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *pebbleMap) Get(key []byte) (*db.Handle, error) {
	if m.engine.closed.Load() {
		return nil, db.ErrClosed
	}
	value, closer, err := m.engine.pdb.Get(m.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return db.NewHandle(value, closer, m.engine.tracker.Acquire()), nil
}

// GetBatch looks up every key with Get
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *pebbleMap) GetBatch(keys [][]byte) []db.Result {
	results := make([]db.Result, len(keys))
	for i, k := range keys {
		results[i].Handle, results[i].Err = m.Get(k)
	}
	return results
}

// NewIterator creates a pebble iterator bounded to the keys of this map
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *pebbleMap) NewIterator() (db.Iterator, error) {
	if m.engine.closed.Load() {
		return nil, db.ErrClosed
	}
	it := m.engine.pdb.NewIter(&pebble.IterOptions{
		LowerBound: m.prefix,
		UpperBound: m.upper,
	})
	return &pebbleIterator{m: m, it: it, lease: m.engine.tracker.Acquire()}, nil
}

// Put inserts or overwrites the value of key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *pebbleMap) Put(key, value []byte) error {
	if m.engine.closed.Load() {
		return db.ErrClosed
	}
	return m.engine.pdb.Set(m.key(key), value, m.engine.writeOpts)
}

// Delete removes key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *pebbleMap) Delete(key []byte) error {
	if m.engine.closed.Load() {
		return db.ErrClosed
	}
	return m.engine.pdb.Delete(m.key(key), m.engine.writeOpts)
}

// --------------------------------------------------------------------------
// db.Iterator
// --------------------------------------------------------------------------

type pebbleIterator struct {
	m      *pebbleMap
	it     *pebble.Iterator
	lease  *db.Lease
	dir    db.Direction
	closed bool
}

func (p *pebbleIterator) Seek(dir db.Direction, from []byte) bool {
	if p.closed {
		return false
	}
	p.dir = dir

	switch {
	case dir == db.Forward && from == nil:
		return p.it.First()
	case dir == db.Forward:
		return p.it.SeekGE(p.m.key(from))
	case from == nil:
		return p.it.Last()
	default:
		// the last key <= from is the last key < from+0x00
		return p.it.SeekLT(append(p.m.key(from), 0x00))
	}
}

func (p *pebbleIterator) Valid() bool {
	return !p.closed && p.it.Valid()
}

func (p *pebbleIterator) Key() []byte {
	if !p.Valid() {
		return nil
	}
	return p.it.Key()[len(p.m.prefix):]
}

func (p *pebbleIterator) Value() []byte {
	if !p.Valid() {
		return nil
	}
	return p.it.Value()
}

func (p *pebbleIterator) Next() bool {
	if !p.Valid() {
		return false
	}
	if p.dir == db.Reverse {
		return p.it.Prev()
	}
	return p.it.Next()
}

func (p *pebbleIterator) Error() error {
	if p.closed {
		return nil
	}
	return p.it.Error()
}

func (p *pebbleIterator) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.lease.Release()
	return p.it.Close()
}
