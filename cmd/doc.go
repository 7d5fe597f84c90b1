// Package cmd implements the command-line interface of dbpool. It opens a
// database with the configured engine and pool, runs queries through the
// dispatch pool and reports the layout and state of the pool.
//
// The package is organized into several subpackages:
//
//   - query: Queries against a database (get, batch, scan, put, del, stats)
//     and the perf benchmark
//   - topology: Prints the worker and queue layout for this machine
//   - util: Shared utilities for flags, configuration and output (internal use)
//
// All flags can also be set as environment variables with the DBPOOL_ prefix,
// .env and .env.local files in the working directory are loaded on start.
//
// See dbpool -help for a list of all commands.
package cmd
