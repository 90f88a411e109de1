// Package log provides structured, colored logging for powrace.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Round   zerolog.Logger
	Miner   zerolog.Logger
	Ledger  zerolog.Logger
	Events  zerolog.Logger
	Journal zerolog.Logger
	Storage zerolog.Logger
	RPC     zerolog.Logger
	Node    zerolog.Logger
)

var (
	fileMu   sync.Mutex
	logFile  *os.File // Current log file, closed on re-Init.
	curLevel string
	curJSON  bool
)

func init() {
	// Default to colored console output
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration.
// When file is non-empty, logs go to both the console (colored or JSON
// depending on jsonOutput) and the file (always JSON). Calling Init again
// closes the previous file.
//
// Component loggers are rebuilt, so Init must run before components capture
// them.
func Init(level string, jsonOutput bool, file string) error {
	var f *os.File
	if file != "" {
		var err error
		f, err = os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
	}

	console := consoleWriter(os.Stdout, jsonOutput)
	var w io.Writer = console
	if f != nil {
		w = zerolog.MultiLevelWriter(console, f)
	}
	Logger = newLogger(w, level)
	initComponentLoggers()

	fileMu.Lock()
	prev := logFile
	logFile, curLevel, curJSON = f, level, jsonOutput
	fileMu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close closes the log file opened by Init and keeps logging to the console
// only, at the same level and format. It is a no-op without a file.
func Close() error {
	fileMu.Lock()
	open := logFile != nil
	level, jsonOutput := curLevel, curJSON
	fileMu.Unlock()
	if !open {
		return nil
	}
	return Init(level, jsonOutput, "")
}

// File returns the path of the log file Init opened, or "" when logging
// goes to the console only.
func File() string {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w, false), level)
}

func consoleWriter(w io.Writer, jsonOutput bool) io.Writer {
	if jsonOutput {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// initComponentLoggers initializes loggers for each component.
func initComponentLoggers() {
	Round = WithComponent("round")
	Miner = WithComponent("miner")
	Ledger = WithComponent("ledger")
	Events = WithComponent("events")
	Journal = WithComponent("journal")
	Storage = WithComponent("storage")
	RPC = WithComponent("rpc")
	Node = WithComponent("node")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithWorker returns a miner logger tagged with a worker id.
func WithWorker(id int) zerolog.Logger {
	return Miner.With().Int("worker", id).Logger()
}
