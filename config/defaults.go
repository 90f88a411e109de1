package config

import (
	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/miner"
	"github.com/Klingon-tech/powrace/internal/round"
)

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Sim: SimConfig{
			Workers:     3,
			Capacity:    round.DefaultCapacity,
			Difficulty:  round.DefaultDifficulty,
			AutoStart:   false,
			PaceEvery:   miner.DefaultPaceEvery,
			PaceDelayMS: int(miner.DefaultPaceDelay.Milliseconds()),
			CheckEvery:  miner.DefaultCheckEvery,
		},
		Events: EventsConfig{
			Buffer: events.DefaultBufferSize,
			Feed:   events.DefaultFeedSize,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8645,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Journal: JournalConfig{
			Enabled: true,
			Backend: JournalMemory,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
