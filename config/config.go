// Package config handles powraced configuration.
//
// Settings come from three layers, later layers winning: built-in defaults,
// a key = value config file, and command-line flags.
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Journal backends.
const (
	JournalMemory = "memory"
	JournalBadger = "badger"
)

// MaxWorkers caps sim.workers.
const MaxWorkers = 64

// Config holds the daemon configuration.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`

	// Simulation
	Sim SimConfig

	// Event bus
	Events EventsConfig

	// RPC server
	RPC RPCConfig

	// Block journal
	Journal JournalConfig

	// Logging
	Log LogConfig
}

// SimConfig holds the initial simulation settings.
type SimConfig struct {
	Workers     int  `conf:"sim.workers"`
	Capacity    int  `conf:"sim.capacity"`
	Difficulty  int  `conf:"sim.difficulty"`
	AutoStart   bool `conf:"sim.autostart"`     // Start mining as soon as the daemon is up.
	PaceEvery   int  `conf:"sim.pace_every"`    // Attempts between pauses (0 = never pause).
	PaceDelayMS int  `conf:"sim.pace_delay_ms"` // Pause length in milliseconds.
	CheckEvery  int  `conf:"sim.check_every"`   // Attempts between liveness checks.
}

// PaceDelay returns the pause length as a duration.
func (s SimConfig) PaceDelay() time.Duration {
	return time.Duration(s.PaceDelayMS) * time.Millisecond
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	Buffer int `conf:"events.buffer"` // Bus queue length.
	Feed   int `conf:"events.feed"`   // Recent events kept for events_recent.
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// ListenAddr returns the host:port the RPC server binds.
func (r RPCConfig) ListenAddr() string {
	return net.JoinHostPort(r.Addr, strconv.Itoa(r.Port))
}

// JournalConfig holds block journal settings.
type JournalConfig struct {
	Enabled bool   `conf:"journal.enabled"`
	Backend string `conf:"journal.backend"` // memory or badger
	Path    string `conf:"journal.path"`    // Badger directory; empty = in-memory Badger.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.powrace
//	macOS:   ~/Library/Application Support/Powrace
//	Windows: %APPDATA%\Powrace
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".powrace"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Powrace")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Powrace")
		}
		return filepath.Join(home, "AppData", "Roaming", "Powrace")
	default:
		return filepath.Join(home, ".powrace")
	}
}

// JournalDir returns the default on-disk journal directory.
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "powrace.conf")
}
