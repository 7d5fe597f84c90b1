package store

import (
	"context"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/rcrowley/go-metrics"
	"time"
)

// Map is a named map of a database. Reads go through the dispatch pool,
// writes are executed directly on the calling goroutine.
type Map struct {
	name string
	db   *Database
	m    db.Map

	getTimer   metrics.Timer
	batchTimer metrics.Timer
	seekTimer  metrics.Timer
}

func newMap(d *Database, m db.Map) *Map {
	timer := func(op string) metrics.Timer {
		return metrics.GetOrRegisterTimer(m.Name()+"."+op, d.registry)
	}
	return &Map{
		name:       m.Name(),
		db:         d,
		m:          m,
		getTimer:   timer("get"),
		batchTimer: timer("batch"),
		seekTimer:  timer("seek"),
	}
}

// Name returns the name of the map
func (m *Map) Name() string {
	return m.name
}

// Get returns the value of key. The handle must be released by the caller
// before the database is closed.
func (m *Map) Get(ctx context.Context, key []byte) (*db.Handle, error) {
	start := time.Now()
	defer m.getTimer.UpdateSince(start)
	return m.db.pool.Get(ctx, m.m, key)
}

// GetBatch looks up all keys, see dbpool.Pool.GetBatch
func (m *Map) GetBatch(ctx context.Context, keys [][]byte) ([]db.Result, error) {
	start := time.Now()
	defer m.batchTimer.UpdateSince(start)
	return m.db.pool.GetBatch(ctx, m.m, keys)
}

// Seek returns a positioned iterator, see dbpool.Pool.Seek
func (m *Map) Seek(ctx context.Context, dir db.Direction, from []byte) (db.Iterator, error) {
	start := time.Now()
	defer m.seekTimer.UpdateSince(start)
	return m.db.pool.Seek(ctx, m.m, dir, from)
}

// Put inserts or overwrites the value of key
func (m *Map) Put(key, value []byte) error {
	if m.db.closed.Load() {
		return ErrClosed
	}
	return m.m.Put(key, value)
}

// Delete removes key
func (m *Map) Delete(key []byte) error {
	if m.db.closed.Load() {
		return ErrClosed
	}
	return m.m.Delete(key)
}
