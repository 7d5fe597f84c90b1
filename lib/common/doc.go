// Package common provides the configuration structures and the logging setup
// shared by every other package of the module.
//
// Key Components:
//
//   - Config: The complete configuration of a database instance, made of an
//     EngineConfig (which storage engine and where it keeps its data) and a
//     PoolConfig (worker count, queue layout, core pinning). Zero values in
//     PoolConfig select the defaults of the topology planner, so a partially
//     filled configuration is always valid.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logger package. Packages obtain their logger with logger.GetLogger using
//     one of the Logger* names and InitLoggers sets the level for all of them.
package common
