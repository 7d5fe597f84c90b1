package sqlite

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

var Logger = logger.GetLogger("engine")

const (
	// pageSize is the number of rows an iterator loads per query
	pageSize = 256
	// maxBatchParams bounds the number of keys in a single IN (...) query
	maxBatchParams = 500
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS maps (
  name TEXT PRIMARY KEY
);`,
	`CREATE TABLE IF NOT EXISTS kv (
  map   TEXT NOT NULL,
  key   BLOB NOT NULL,
  value BLOB,
  PRIMARY KEY (map, key)
) WITHOUT ROWID;`,
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

type sqliteImpl struct {
	sdb     *sql.DB
	path    string
	maps    *xsync.MapOf[string, *sqliteMap]
	tracker db.Tracker
	closed  atomic.Bool
}

type sqliteMap struct {
	name   string
	engine *sqliteImpl
}

// Open opens (and creates if needed) the SQLite database at path and ensures
// the tables exist.
func Open(path string) (db.Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	// pragmas in the DSN are applied to every connection of the pool
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(NORMAL)"},
	}.Encode()

	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := sdb.Exec(stmt); err != nil {
			_ = sdb.Close()
			return nil, fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}

	e := &sqliteImpl{
		sdb:  sdb,
		path: path,
		maps: xsync.NewMapOf[string, *sqliteMap](),
	}

	rows, err := sdb.Query(`SELECT name FROM maps`)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("load map names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = sdb.Close()
			return nil, fmt.Errorf("load map names: %w", err)
		}
		e.maps.Store(name, &sqliteMap{name: name, engine: e})
	}
	if err := rows.Err(); err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("load map names: %w", err)
	}

	Logger.Infof("sqlite: opened %s with %d maps", path, e.maps.Size())
	return e, nil
}

// Open returns the map with the given name, creating it if needed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *sqliteImpl) Open(name string) (db.Map, error) {
	if e.closed.Load() {
		return nil, db.ErrClosed
	}
	if m, ok := e.maps.Load(name); ok {
		return m, nil
	}
	if _, err := e.sdb.Exec(`INSERT INTO maps(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return nil, fmt.Errorf("sqlite: create map %q: %w", name, err)
	}
	m, _ := e.maps.LoadOrStore(name, &sqliteMap{name: name, engine: e})
	return m, nil
}

// Names returns the names of all maps in ascending order
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *sqliteImpl) Names() []string {
	names := make([]string, 0, e.maps.Size())
	e.maps.Range(func(name string, _ *sqliteMap) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Info reports the file size and the number of entries per map
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *sqliteImpl) Info() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:     db.ImplSQLite,
		Maps:       e.Names(),
		OpenLeases: e.tracker.Open(),
	}
	if e.closed.Load() {
		return info
	}

	var size int
	err := e.sdb.QueryRow(`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	if err != nil {
		Logger.Warningf("sqlite: reading size: %v", err)
	}
	info.SizeBytes = size

	entries := make(map[string]int)
	rows, err := e.sdb.Query(`SELECT map, COUNT(*) FROM kv GROUP BY map`)
	if err != nil {
		Logger.Warningf("sqlite: counting entries: %v", err)
		return info
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err == nil {
			entries[name] = count
		}
	}
	info.Metadata = map[string]interface{}{
		"path":    e.path,
		"entries": entries,
	}
	return info
}

// Close closes the connection pool. Handles and iterators still open are
// reported as db.ErrLeaked.
//
// Thread-safety: This method must only be called once, after all users stopped.
func (e *sqliteImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if err := e.tracker.Check(); err != nil {
		Logger.Errorf("sqlite: %v", err)
		result = multierror.Append(result, err)
	}
	if err := e.sdb.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// db.Map
// --------------------------------------------------------------------------

func (m *sqliteMap) Name() string {
	return m.name
}

// Get returns the value for key. The handle owns the scanned bytes.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *sqliteMap) Get(key []byte) (*db.Handle, error) {
	if m.engine.closed.Load() {
		return nil, db.ErrClosed
	}

	var value []byte
	err := m.engine.sdb.QueryRow(`SELECT value FROM kv WHERE map = ? AND key = ?`, m.name, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return db.NewHandle(value, nil, m.engine.tracker.Acquire()), nil
}

// GetBatch resolves the keys with IN (...) queries of at most maxBatchParams
// keys and restores the order of keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *sqliteMap) GetBatch(keys [][]byte) []db.Result {
	results := make([]db.Result, len(keys))
	if m.engine.closed.Load() {
		for i := range results {
			results[i].Err = db.ErrClosed
		}
		return results
	}

	for start := 0; start < len(keys); start += maxBatchParams {
		end := min(start+maxBatchParams, len(keys))
		m.getChunk(keys[start:end], results[start:end])
	}
	return results
}

func (m *sqliteMap) getChunk(keys [][]byte, results []db.Result) {
	args := make([]interface{}, 0, len(keys)+1)
	args = append(args, m.name)
	for _, k := range keys {
		args = append(args, k)
	}
	query := `SELECT key, value FROM kv WHERE map = ? AND key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`

	fail := func(err error) {
		for i := range results {
			if results[i].Handle != nil {
				_ = results[i].Handle.Release()
			}
			results[i] = db.Result{Err: err}
		}
	}

	rows, err := m.engine.sdb.Query(query, args...)
	if err != nil {
		fail(err)
		return
	}
	defer rows.Close()

	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			fail(err)
			return
		}
		found[string(k)] = v
	}
	if err := rows.Err(); err != nil {
		fail(err)
		return
	}

	for i, k := range keys {
		v, ok := found[string(k)]
		if !ok {
			results[i].Err = db.ErrNotFound
			continue
		}
		// duplicate keys in a batch get their own copy
		results[i].Handle = db.NewHandle(bytes.Clone(v), nil, m.engine.tracker.Acquire())
	}
}

// NewIterator creates an iterator that loads pageSize rows per query
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *sqliteMap) NewIterator() (db.Iterator, error) {
	if m.engine.closed.Load() {
		return nil, db.ErrClosed
	}
	return &sqliteIterator{m: m, lease: m.engine.tracker.Acquire()}, nil
}

// Put inserts or overwrites the value of key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *sqliteMap) Put(key, value []byte) error {
	if m.engine.closed.Load() {
		return db.ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	_, err := m.engine.sdb.Exec(`INSERT INTO kv(map, key, value) VALUES (?, ?, ?)
ON CONFLICT(map, key) DO UPDATE SET value = excluded.value`, m.name, key, value)
	return err
}

// Delete removes key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *sqliteMap) Delete(key []byte) error {
	if m.engine.closed.Load() {
		return db.ErrClosed
	}
	_, err := m.engine.sdb.Exec(`DELETE FROM kv WHERE map = ? AND key = ?`, m.name, key)
	return err
}

// --------------------------------------------------------------------------
// db.Iterator
// --------------------------------------------------------------------------

type row struct {
	key   []byte
	value []byte
}

// sqliteIterator pages through a map. It does not hold a connection between
// calls, each page is a separate query continuing after the last key seen.
type sqliteIterator struct {
	m      *sqliteMap
	lease  *db.Lease
	dir    db.Direction
	page   []row
	pos    int
	done   bool // the last page was short, no more rows
	err    error
	closed bool
}

// load replaces the page with the rows after (or from, if inclusive) the given key
func (it *sqliteIterator) load(from []byte, inclusive bool) {
	var (
		op    string
		order string
	)
	if it.dir == db.Reverse {
		op, order = "<", "DESC"
	} else {
		op, order = ">", "ASC"
	}
	if inclusive {
		op += "="
	}

	query := `SELECT key, value FROM kv WHERE map = ?`
	args := []interface{}{it.m.name}
	if from != nil {
		query += ` AND key ` + op + ` ?`
		args = append(args, from)
	}
	query += ` ORDER BY key ` + order + ` LIMIT ?`
	args = append(args, pageSize)

	it.page = it.page[:0]
	it.pos = 0

	rows, err := it.m.engine.sdb.Query(query, args...)
	if err != nil {
		it.err = err
		it.done = true
		return
	}
	defer rows.Close()

	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.value); err != nil {
			it.err = err
			break
		}
		it.page = append(it.page, r)
	}
	if err := rows.Err(); err != nil && it.err == nil {
		it.err = err
	}
	it.done = it.err != nil || len(it.page) < pageSize
	if it.err != nil {
		it.page = it.page[:0]
	}
}

func (it *sqliteIterator) Seek(dir db.Direction, from []byte) bool {
	if it.closed {
		return false
	}
	if it.m.engine.closed.Load() {
		it.err = db.ErrClosed
		return false
	}
	it.dir = dir
	it.err = nil
	it.load(from, true)
	return it.Valid()
}

func (it *sqliteIterator) Valid() bool {
	return !it.closed && it.pos < len(it.page)
}

func (it *sqliteIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.page[it.pos].key
}

func (it *sqliteIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.page[it.pos].value
}

func (it *sqliteIterator) Next() bool {
	if !it.Valid() {
		return false
	}
	it.pos++
	if it.pos < len(it.page) || it.done {
		return it.Valid()
	}
	last := it.page[len(it.page)-1].key
	it.load(last, false)
	return it.Valid()
}

func (it *sqliteIterator) Error() error {
	return it.err
}

func (it *sqliteIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.page = nil
	it.lease.Release()
	return nil
}
