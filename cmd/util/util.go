package util

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/ValentinKolb/dbpool/lib/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupDatabaseFlags adds the engine, pool and logging flags to a command
func SetupDatabaseFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, "maple", WrapString("Storage engine to use (maple, pebble, sqlite). maple keeps all data in memory"))

	key = "path"
	cmd.PersistentFlags().String(key, "data", WrapString("Data directory (pebble) or database file (sqlite), ignored by maple"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	SetupPoolFlags(cmd)
}

// SetupPoolFlags adds the tuning flags of the dispatch pool to a command
func SetupPoolFlags(cmd *cobra.Command) {
	def := common.DefaultPoolConfig()

	key := "pool-workers"
	cmd.PersistentFlags().Int(key, def.Workers, WrapString("Total number of worker threads (0 = cores * pool-workers-per-core)"))

	key = "pool-workers-per-core"
	cmd.PersistentFlags().Int(key, def.WorkersPerCore, WrapString("Workers per core, used when pool-workers is 0"))

	key = "pool-queues"
	cmd.PersistentFlags().Int(key, def.Queues, WrapString("Number of queues when affinity is enabled (0 = one per core)"))

	key = "pool-queue-size"
	cmd.PersistentFlags().Int(key, def.QueueSize, WrapString("Capacity of every queue (0 = workers of the queue * pool-queue-multiplier)"))

	key = "pool-queue-multiplier"
	cmd.PersistentFlags().Int(key, def.QueueMultiplier, WrapString("Queue slots per worker, used when pool-queue-size is 0"))

	key = "pool-affinity"
	cmd.PersistentFlags().Bool(key, def.Affinity, WrapString("Pin workers to cores and route commands to the queue of the calling core"))

	key = "pool-diagnostics"
	cmd.PersistentFlags().Bool(key, def.Diagnostics, WrapString("Track the high water mark of queued commands"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dbpool")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// BindFlagsPreRun is BindCommandFlags as a cobra (Persistent)PreRunE hook
func BindFlagsPreRun(cmd *cobra.Command, _ []string) error {
	return BindCommandFlags(cmd)
}

// GetPoolConfig reads the pool configuration from viper
func GetPoolConfig() common.PoolConfig {
	return common.PoolConfig{
		Workers:         viper.GetInt("pool-workers"),
		WorkersPerCore:  viper.GetInt("pool-workers-per-core"),
		Queues:          viper.GetInt("pool-queues"),
		QueueSize:       viper.GetInt("pool-queue-size"),
		QueueMultiplier: viper.GetInt("pool-queue-multiplier"),
		Affinity:        viper.GetBool("pool-affinity"),
		Diagnostics:     viper.GetBool("pool-diagnostics"),
	}
}

// GetConfig reads the database configuration from viper
func GetConfig() (*common.Config, error) {
	engine, err := common.ParseEngineType(viper.GetString("engine"))
	if err != nil {
		return nil, err
	}
	level := viper.GetString("log-level")
	if _, err := common.ParseLogLevel(level); err != nil {
		return nil, err
	}

	return &common.Config{
		Engine: common.EngineConfig{
			Type: engine,
			Path: viper.GetString("path"),
		},
		Pool:     GetPoolConfig(),
		LogLevel: level,
	}, nil
}

// OpenDatabase initializes the loggers and opens the configured database.
// Logs go to stderr so that query output on stdout stays parseable.
func OpenDatabase() (*store.Database, *common.Config, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, nil, err
	}

	common.SetOutput(os.Stderr)
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return nil, nil, err
	}

	d, err := store.Open(*cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return d, cfg, nil
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// Output formats of the query commands
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// WriteOutput writes v in the given format. text uses the fmt %v rendering,
// unless v implements fmt.Stringer.
func WriteOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case OutputText, "":
		_, err := fmt.Fprintln(w, v)
		return err
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid output format %s. must be one of text, json, yaml", format)
	}
}
