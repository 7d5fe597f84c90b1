package store

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/affinity"
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/ValentinKolb/dbpool/lib/db/engines/maple"
	"github.com/ValentinKolb/dbpool/lib/db/engines/pebble"
	"github.com/ValentinKolb/dbpool/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dbpool/lib/dbpool"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
	"sort"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("store")

// ErrClosed is returned by every operation on a closed database
var ErrClosed = errors.New("store: database closed")

// --------------------------------------------------------------------------
// Engine factory
// --------------------------------------------------------------------------

// EngineFactory creates the storage engine of a database. This is used to
// abstract the creation of the engine from the database lifecycle.
type EngineFactory func(cfg common.EngineConfig) (db.Engine, error)

// NewEngine creates the engine selected by cfg.Type
func NewEngine(cfg common.EngineConfig) (db.Engine, error) {
	switch cfg.Type {
	case common.EngineMaple, "":
		return maple.NewMapleDB(), nil
	case common.EnginePebble:
		if cfg.Path == "" {
			return nil, fmt.Errorf("store: engine %s needs a path", cfg.Type)
		}
		return pebble.Open(pebble.Options{Path: cfg.Path})
	case common.EngineSQLite:
		return sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("store: unknown engine %q", cfg.Type)
	}
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// Database owns a storage engine and the dispatch pool in front of it. It is
// the only place that knows the order in which the two must be torn down:
// the pool is shut down first, so no worker still holds engine memory when
// the engine is closed.
//
// Thread-safety: All methods are safe for concurrent use.
type Database struct {
	engine   db.Engine
	pool     *dbpool.Pool
	maps     *xsync.MapOf[string, *Map]
	registry metrics.Registry

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open creates the engine and the pool described by cfg. The pool uses the
// CPU topology of this machine.
func Open(cfg common.Config) (*Database, error) {
	return OpenWith(cfg, NewEngine, affinity.System())
}

// OpenWith is Open with an explicit engine factory and affinity capability
func OpenWith(cfg common.Config, factory EngineFactory, aff affinity.Affinity) (*Database, error) {
	engine, err := factory(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return New(engine, dbpool.Server{Config: cfg.Pool, Affinity: aff})
}

// New starts a pool for engine. The database takes ownership of the engine,
// it is closed if the pool cannot be started.
func New(engine db.Engine, server dbpool.Server) (*Database, error) {
	pool, err := dbpool.New(server)
	if err != nil {
		return nil, multierror.Append(err, engine.Close()).ErrorOrNil()
	}

	d := &Database{
		engine:   engine,
		pool:     pool,
		maps:     xsync.NewMapOf[string, *Map](),
		registry: metrics.NewRegistry(),
	}
	Logger.Infof("store: opened %s engine with maps %v", engine.Info().DbType, engine.Names())
	return d, nil
}

// Map returns the map with the given name, creating it if needed
func (d *Database) Map(name string) (*Map, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("store: empty map name")
	}
	if m, ok := d.maps.Load(name); ok {
		return m, nil
	}

	dm, err := d.engine.Open(name)
	if err != nil {
		return nil, fmt.Errorf("store: open map %s: %w", name, err)
	}
	m, _ := d.maps.LoadOrStore(name, newMap(d, dm))
	return m, nil
}

// Names returns the names of all maps of the engine
func (d *Database) Names() []string {
	return d.engine.Names()
}

// Pool returns the dispatch pool of the database
func (d *Database) Pool() *dbpool.Pool {
	return d.pool
}

// Metrics returns the registry holding the read timers of all maps
func (d *Database) Metrics() metrics.Registry {
	return d.registry
}

// Close shuts the pool down, waits for all workers and then closes the
// engine. Errors of both steps are returned together. Idempotent.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)

		var result *multierror.Error

		d.pool.Shutdown()
		if s := d.pool.Stats(); s.Terminated != s.Workers {
			result = multierror.Append(result,
				fmt.Errorf("store: %d of %d workers still running", s.Workers-s.Terminated, s.Workers))
		}

		if err := d.engine.Close(); err != nil {
			Logger.Errorf("store: closing engine: %v", err)
			result = multierror.Append(result, err)
		}

		d.registry.UnregisterAll()
		d.closeErr = result.ErrorOrNil()
		Logger.Infof("store: closed")
	})
	return d.closeErr
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// TimerStats summarises one read timer. Durations are in nanoseconds.
type TimerStats struct {
	Count int64   `json:"count" yaml:"count"`
	Mean  float64 `json:"mean_ns" yaml:"mean_ns"`
	P50   float64 `json:"p50_ns" yaml:"p50_ns"`
	P99   float64 `json:"p99_ns" yaml:"p99_ns"`
	Rate1 float64 `json:"rate_1m" yaml:"rate_1m"`
}

// Stats is a snapshot of a database
type Stats struct {
	Pool   dbpool.Stats          `json:"pool" yaml:"pool"`
	Engine db.DatabaseInfo       `json:"engine" yaml:"engine"`
	Reads  map[string]TimerStats `json:"reads" yaml:"reads"`
}

// Stats returns the pool state, the engine info and the read timers. The
// engine info is empty once the database is closed.
func (d *Database) Stats() Stats {
	s := Stats{
		Pool:  d.pool.Stats(),
		Reads: make(map[string]TimerStats),
	}
	if !d.closed.Load() {
		s.Engine = d.engine.Info()
	}

	d.registry.Each(func(name string, i interface{}) {
		t, ok := i.(metrics.Timer)
		if !ok {
			return
		}
		snap := t.Snapshot()
		if snap.Count() == 0 {
			return
		}
		s.Reads[name] = TimerStats{
			Count: snap.Count(),
			Mean:  snap.Mean(),
			P50:   snap.Percentile(0.5),
			P99:   snap.Percentile(0.99),
			Rate1: snap.Rate1(),
		}
	})
	return s
}

// TimerNames returns the names of all timers with at least one sample, sorted
func (s Stats) TimerNames() []string {
	names := make([]string, 0, len(s.Reads))
	for n := range s.Reads {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
