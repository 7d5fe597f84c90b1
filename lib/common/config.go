package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Engine configuration
// --------------------------------------------------------------------------

type EngineType string

const (
	EngineMaple  EngineType = "maple"
	EnginePebble EngineType = "pebble"
	EngineSQLite EngineType = "sqlite"
)

// ParseEngineType validates an engine name as given on the command line
func ParseEngineType(name string) (EngineType, error) {
	switch t := EngineType(strings.ToLower(name)); t {
	case EngineMaple, EnginePebble, EngineSQLite:
		return t, nil
	default:
		return "", fmt.Errorf("invalid engine: %s. must be one of maple, pebble, sqlite", name)
	}
}

// EngineConfig selects the storage engine behind the pool
type EngineConfig struct {
	// Type is the engine implementation
	Type EngineType
	// Path is the data directory (pebble) or database file (sqlite). ignored by maple
	Path string
}

// --------------------------------------------------------------------------
// Pool configuration
// --------------------------------------------------------------------------

// Defaults used by the topology planner when the corresponding field is zero.
const (
	DefaultWorkersPerCore  = 2
	DefaultQueueMultiplier = 4
)

// PoolConfig holds the tuning parameters of the dispatch pool.
// Zero values select the planner defaults, out of range values are clamped.
type PoolConfig struct {
	// Workers is the total number of worker threads (0 = cores * WorkersPerCore)
	Workers int
	// WorkersPerCore is used when Workers is zero
	WorkersPerCore int
	// Queues is the number of queues when affinity is enabled (0 = one per core)
	Queues int
	// QueueSize is the capacity of every queue (0 = workers in group * QueueMultiplier)
	QueueSize int
	// QueueMultiplier is used when QueueSize is zero
	QueueMultiplier int
	// Affinity enables core pinning and per core queue routing
	Affinity bool
	// Diagnostics enables the high water mark of queued commands
	Diagnostics bool
}

// DefaultPoolConfig returns the configuration used when nothing is set
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkersPerCore:  DefaultWorkersPerCore,
		QueueMultiplier: DefaultQueueMultiplier,
		Affinity:        true,
	}
}

// --------------------------------------------------------------------------
// Database configuration
// --------------------------------------------------------------------------

// Config is the complete configuration of a database instance
type Config struct {
	Engine EngineConfig
	Pool   PoolConfig

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orAuto := func(v int) string {
		if v <= 0 {
			return "auto"
		}
		return strconv.Itoa(v)
	}

	// Engine
	addSection("Engine")
	addField("Type", string(c.Engine.Type))
	if c.Engine.Type != EngineMaple {
		addField("Path", c.Engine.Path)
	}

	// Pool
	addSection("Dispatch Pool")
	addField("Workers", orAuto(c.Pool.Workers))
	addField("Workers Per Core", orAuto(c.Pool.WorkersPerCore))
	addField("Queues", orAuto(c.Pool.Queues))
	addField("Queue Size", orAuto(c.Pool.QueueSize))
	addField("Queue Multiplier", orAuto(c.Pool.QueueMultiplier))
	addField("Affinity", fmt.Sprintf("%t", c.Pool.Affinity))
	addField("Diagnostics", fmt.Sprintf("%t", c.Pool.Diagnostics))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
