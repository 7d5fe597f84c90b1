// Package store ties a storage engine and the dispatch pool together into a
// database with an explicit lifecycle. It is the layer used by the command
// line tools and by applications that embed the module.
//
// Key Components:
//
//   - Database: Owns the engine (db.Engine) and the pool (dbpool.Pool). It is
//     created by Open from a common.Config or by New from an engine that was
//     built elsewhere. Close shuts the pool down, waits until every worker
//     exited and only then closes the engine. Errors of both steps are
//     aggregated with go-multierror, a handle that was never released shows
//     up as db.ErrLeaked.
//
//   - EngineFactory: A function type that abstracts the creation of the
//     engine (maple, pebble or sqlite) and allows tests to inject their own.
//
//   - Map: A named map of a database. Get, GetBatch and Seek are submitted to
//     the pool, Put and Delete run directly on the calling goroutine. Every
//     read is timed with a go-metrics timer registered under
//     "<map>.get", "<map>.batch" and "<map>.seek".
//
// Usage Example:
//
//	cfg := common.Config{
//		Engine: common.EngineConfig{Type: common.EnginePebble, Path: "/var/lib/dbpool"},
//		Pool:   common.DefaultPoolConfig(),
//	}
//	d, err := store.Open(cfg)
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//
//	users, _ := d.Map("users")
//	h, err := users.Get(ctx, []byte("alice"))
//	if err != nil {
//		return err
//	}
//	defer h.Release()
package store
