package events

import "github.com/rs/zerolog"

// LogHandler returns a Handler that writes events to logger. Searching
// events are debug-level; everything else is info.
func LogHandler(logger zerolog.Logger) Handler {
	return func(e Event) {
		switch e.Kind {
		case KindWorkerSearching:
			logger.Debug().Int("worker", e.WorkerID).Int("round", e.Round).Msg("Worker searching")
		case KindWorkerSolved:
			logger.Info().Int("worker", e.WorkerID).Int("round", e.Round).Uint64("nonce", e.Nonce).Msg("Worker solved round")
		case KindLedgerAppended:
			if e.Block == nil {
				return
			}
			logger.Info().
				Int("index", e.Block.Index).
				Int("worker", e.Block.WorkerID).
				Uint64("nonce", e.Block.Nonce).
				Str("prev_hash", e.Block.PrevHash).
				Str("hash", e.Block.HashHex()).
				Msg("Block appended")
		case KindCapacityChanged:
			logger.Info().Int("capacity", e.Capacity).Msg("Max blocks changed")
		case KindDifficultyChanged:
			logger.Info().Int("difficulty", e.Difficulty).Msg("Difficulty changed")
		default:
			logger.Info().Str("kind", string(e.Kind)).Int("round", e.Round).Msg("Simulation state changed")
		}
	}
}
