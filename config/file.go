package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "datadir":
		cfg.DataDir = value

	// Simulation
	case "sim.workers":
		return setInt(&cfg.Sim.Workers, value)
	case "sim.capacity":
		return setInt(&cfg.Sim.Capacity, value)
	case "sim.difficulty":
		return setInt(&cfg.Sim.Difficulty, value)
	case "sim.autostart":
		cfg.Sim.AutoStart = parseBool(value)
	case "sim.pace_every":
		return setInt(&cfg.Sim.PaceEvery, value)
	case "sim.pace_delay_ms":
		return setInt(&cfg.Sim.PaceDelayMS, value)
	case "sim.check_every":
		return setInt(&cfg.Sim.CheckEvery, value)

	// Events
	case "events.buffer":
		return setInt(&cfg.Events.Buffer, value)
	case "events.feed":
		return setInt(&cfg.Events.Feed, value)

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		return setInt(&cfg.RPC.Port, value)
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Journal
	case "journal.enabled", "journal":
		cfg.Journal.Enabled = parseBool(value)
	case "journal.backend":
		cfg.Journal.Backend = strings.ToLower(value)
	case "journal.path":
		cfg.Journal.Path = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default daemon configuration file.
func WriteDefaultConfig(path string) error {
	d := Default()
	content := `# powraced configuration
#
# key = value, one per line. Command-line flags override these settings.

# Data directory (default: ~/.powrace)
# datadir = ~/.powrace

# ============================================================================
# Simulation
# ============================================================================

# Number of mining workers (1-64)
sim.workers = ` + strconv.Itoa(d.Sim.Workers) + `

# Ledger capacity in blocks (1-100)
sim.capacity = ` + strconv.Itoa(d.Sim.Capacity) + `

# Trailing zero hex digits a hash needs (1-8)
sim.difficulty = ` + strconv.Itoa(d.Sim.Difficulty) + `

# Start mining as soon as the daemon is up
sim.autostart = false

# Pause each worker for pace_delay_ms after every pace_every attempts (0 = never)
sim.pace_every = ` + strconv.Itoa(d.Sim.PaceEvery) + `
sim.pace_delay_ms = ` + strconv.Itoa(d.Sim.PaceDelayMS) + `

# Attempts between round liveness checks
sim.check_every = ` + strconv.Itoa(d.Sim.CheckEvery) + `

# ============================================================================
# Events
# ============================================================================

events.buffer = ` + strconv.Itoa(d.Events.Buffer) + `
events.feed = ` + strconv.Itoa(d.Events.Feed) + `

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = ` + d.RPC.Addr + `
rpc.port = ` + strconv.Itoa(d.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Block Journal
# ============================================================================

journal.enabled = true
# memory or badger
journal.backend = memory
# Badger directory (empty = in-memory Badger)
# journal.path =

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
