package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string

	// Simulation
	Workers     int
	Capacity    int
	Difficulty  int
	AutoStart   bool
	PaceEvery   int
	PaceDelayMS int
	CheckEvery  int

	// Events
	EventsBuffer int
	EventsFeed   int

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Journal
	Journal        bool
	JournalBackend string
	JournalPath    string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags whose zero value is meaningful.
	SetAutoStart  bool
	SetPaceEvery  bool
	SetPaceDelay  bool
	SetEventsFeed bool
	SetRPC        bool
	SetRPCPort    bool
	SetJournal    bool
	SetLogJSON    bool
}

// ParseFlags parses command-line arguments, not including the program name.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("powraced", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Simulation
	fs.IntVar(&f.Workers, "workers", 0, "Number of mining workers")
	fs.IntVar(&f.Capacity, "capacity", 0, "Ledger capacity in blocks")
	fs.IntVar(&f.Difficulty, "difficulty", 0, "Trailing zero hex digits required")
	fs.BoolVar(&f.AutoStart, "autostart", false, "Start mining immediately")
	fs.IntVar(&f.PaceEvery, "pace-every", 0, "Attempts between worker pauses (0 = never)")
	fs.IntVar(&f.PaceDelayMS, "pace-delay", 0, "Worker pause in milliseconds")
	fs.IntVar(&f.CheckEvery, "check-every", 0, "Attempts between round liveness checks")

	// Events
	fs.IntVar(&f.EventsBuffer, "events-buffer", 0, "Event bus queue length")
	fs.IntVar(&f.EventsFeed, "events-feed", 0, "Recent events kept for RPC")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Journal
	fs.BoolVar(&f.Journal, "journal", true, "Enable the block journal")
	fs.StringVar(&f.JournalBackend, "journal-backend", "", "Journal backend (memory or badger)")
	fs.StringVar(&f.JournalPath, "journal-path", "", "Badger journal directory")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetAutoStart = isFlagSet(fs, "autostart")
	f.SetPaceEvery = isFlagSet(fs, "pace-every")
	f.SetPaceDelay = isFlagSet(fs, "pace-delay")
	f.SetEventsFeed = isFlagSet(fs, "events-feed")
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetRPCPort = isFlagSet(fs, "rpc-port")
	f.SetJournal = isFlagSet(fs, "journal")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// was silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Simulation
	if f.Workers != 0 {
		cfg.Sim.Workers = f.Workers
	}
	if f.Capacity != 0 {
		cfg.Sim.Capacity = f.Capacity
	}
	if f.Difficulty != 0 {
		cfg.Sim.Difficulty = f.Difficulty
	}
	if f.SetAutoStart {
		cfg.Sim.AutoStart = f.AutoStart
	}
	if f.SetPaceEvery {
		cfg.Sim.PaceEvery = f.PaceEvery
	}
	if f.SetPaceDelay {
		cfg.Sim.PaceDelayMS = f.PaceDelayMS
	}
	if f.CheckEvery != 0 {
		cfg.Sim.CheckEvery = f.CheckEvery
	}

	// Events
	if f.EventsBuffer != 0 {
		cfg.Events.Buffer = f.EventsBuffer
	}
	if f.SetEventsFeed {
		cfg.Events.Feed = f.EventsFeed
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.SetRPCPort {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// Journal
	if f.SetJournal {
		cfg.Journal.Enabled = f.Journal
	}
	if f.JournalBackend != "" {
		cfg.Journal.Backend = strings.ToLower(f.JournalBackend)
	}
	if f.JournalPath != "" {
		cfg.Journal.Path = f.JournalPath
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the daemon help text to w.
func PrintUsage(w io.Writer) {
	usage := `powraced - concurrent proof-of-work mining race

Usage:
  powraced [options]
  powraced --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir       Data directory (default: ~/.powrace)
  --config, -c    Config file path (default: <datadir>/powrace.conf)

Simulation Options:
  --workers       Number of mining workers, 1-64 (default: 3)
  --capacity      Ledger capacity in blocks, 1-100 (default: 20)
  --difficulty    Trailing zero hex digits required, 1-8 (default: 4)
  --autostart     Start mining as soon as the daemon is up
  --pace-every    Attempts between worker pauses, 0 disables (default: 10000)
  --pace-delay    Worker pause in milliseconds (default: 10)
  --check-every   Attempts between round liveness checks (default: 1024)

Event Options:
  --events-buffer Event bus queue length (default: 1024)
  --events-feed   Recent events kept for events_recent (default: 256)

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (default: 8645)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Journal Options:
  --journal         Enable the block journal (default: true)
  --journal-backend memory (default) or badger
  --journal-path    Badger directory (default: in-memory Badger)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Race 8 workers to a 50-block ledger and start immediately
  powraced --workers=8 --capacity=50 --autostart

  # Keep a Badger journal of every appended block
  powraced --journal-backend=badger --journal-path=/tmp/powrace-journal
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
//
// When --help or --version is given, Load returns a nil Config and the
// parsed flags so the caller can act on them.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help || flags.Version {
		return nil, flags, nil
	}

	// Start with defaults
	cfg := Default()

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
