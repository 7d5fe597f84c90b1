// Package testing provides standardised tests and benchmarks for storage
// engines that satisfy the db.Engine interface, plus instrumented maps used by
// the tests of the dispatch pool.
//
// The package contains:
//   - testing: A conformance test suite for the Engine, Map and Iterator contracts
//     (ordering, reverse seeks, map isolation, leases, behaviour after Close)
//   - benchmark: Performance tests for the read paths the dispatch pool uses
//   - instrumented: CountingMap (counts storage reads) and GatedMap (blocks
//     reads until released) to observe the pool from the storage side
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t *testing.T) db.Engine {
//		return NewMyEngine(t.TempDir())
//	}
//
//	// Running the standard test suite
//	dbtesting.RunEngineTests(t, "MyEngine", factory)
package testing
