package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"log"
	"os"
	"strings"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// Loggers used by this module. Every package resolves its logger by one of
// these names with logger.GetLogger, the level is set by InitLoggers.
const (
	LoggerPool   = "dbpool"
	LoggerStore  = "store"
	LoggerEngine = "engine"
	LoggerCLI    = "cli"
)

// output is shared by all loggers, log.Logger serialises the writes
var output = log.New(os.Stdout, "", log.Ldate|log.Ltime)

// dbpoolLogger implements the ILogger interface with custom formatting
type dbpoolLogger struct {
	name  string
	level logger.LogLevel
}

func (l *dbpoolLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *dbpoolLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *dbpoolLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *dbpoolLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *dbpoolLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *dbpoolLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *dbpoolLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	output.Printf("%-5s | %-8s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements dragonboats logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &dbpoolLogger{
		name:  pkgName,
		level: logger.WARNING,
	}
}

// SetOutput redirects all loggers (e.g. to stderr for the CLI)
func SetOutput(w io.Writer) {
	output.SetOutput(w)
}

func init() {
	logger.SetLoggerFactory(CreateLogger)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers sets the level of all loggers used by this module
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	for _, name := range []string{LoggerPool, LoggerStore, LoggerEngine, LoggerCLI} {
		logger.GetLogger(name).SetLevel(lvl)
	}

	// pebble and sqlite do not log through dragonboat, these are only kept
	// quiet in case the dragonboat packages get linked in
	logger.GetLogger("logdb").SetLevel(lvl)
	return nil
}
