package config

import (
	"fmt"

	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/pkg/puzzle"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Sim.Workers < 1 || cfg.Sim.Workers > MaxWorkers {
		return fmt.Errorf("sim.workers must be in range [1, %d]", MaxWorkers)
	}
	if cfg.Sim.Capacity < round.MinCapacity || cfg.Sim.Capacity > round.MaxCapacity {
		return fmt.Errorf("sim.capacity must be in range [%d, %d]", round.MinCapacity, round.MaxCapacity)
	}
	if !puzzle.ValidDifficulty(cfg.Sim.Difficulty) {
		return fmt.Errorf("sim.difficulty must be in range [%d, %d]", puzzle.MinDifficulty, puzzle.MaxDifficulty)
	}
	if cfg.Sim.PaceEvery < 0 {
		return fmt.Errorf("sim.pace_every must not be negative")
	}
	if cfg.Sim.PaceDelayMS < 0 {
		return fmt.Errorf("sim.pace_delay_ms must not be negative")
	}
	if cfg.Sim.CheckEvery < 1 {
		return fmt.Errorf("sim.check_every must be positive")
	}
	if cfg.Events.Buffer < 1 {
		return fmt.Errorf("events.buffer must be positive")
	}
	if cfg.Events.Feed < 0 {
		return fmt.Errorf("events.feed must not be negative")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = JournalMemory
	}
	switch cfg.Journal.Backend {
	case JournalMemory:
		if cfg.Journal.Path != "" {
			return fmt.Errorf("journal.path requires journal.backend=%s", JournalBadger)
		}
	case JournalBadger:
	default:
		return fmt.Errorf("journal.backend must be %q or %q", JournalMemory, JournalBadger)
	}

	return nil
}
