// Package miner implements the workers that race to solve each round.
package miner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powrace/internal/events"
	klog "github.com/Klingon-tech/powrace/internal/log"
	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/pkg/puzzle"
)

// Search pacing defaults.
const (
	DefaultCheckEvery = 1024
	DefaultPaceEvery  = 10000
	DefaultPaceDelay  = 10 * time.Millisecond
)

// Coordinator is the view of round.Coordinator a worker needs.
type Coordinator interface {
	AwaitRound(workerID int) (round.Ticket, error)
	SubmitSolution(workerID, round int, nonce uint64, payload, prevHash string) (bool, error)
	Live(round int) bool
	Difficulty() int
	Shutdown()
}

// Options tunes the search loop.
type Options struct {
	// CheckEvery is the number of attempts between liveness and
	// cancellation checks. Zero means DefaultCheckEvery.
	CheckEvery int

	// PaceEvery is the number of attempts between pauses of PaceDelay.
	// Zero disables pacing.
	PaceEvery int
	PaceDelay time.Duration

	Logger *zerolog.Logger
}

// DefaultOptions returns the options used by powraced unless configured.
func DefaultOptions() Options {
	return Options{
		CheckEvery: DefaultCheckEvery,
		PaceEvery:  DefaultPaceEvery,
		PaceDelay:  DefaultPaceDelay,
	}
}

// Stats is a snapshot of a worker's counters.
type Stats struct {
	WorkerID int    `json:"worker_id"`
	Rounds   uint64 `json:"rounds"`
	Wins     uint64 `json:"wins"`
	Attempts uint64 `json:"attempts"`
	LastHead string `json:"last_head,omitempty"`
}

// Worker searches nonces for whichever round the coordinator admits it to.
type Worker struct {
	id        int
	coord     Coordinator
	presenter events.Presenter
	opts      Options
	logger    zerolog.Logger

	rounds   atomic.Uint64
	wins     atomic.Uint64
	attempts atomic.Uint64
	lastHead atomic.Value // string
}

// NewWorker creates a worker. A nil presenter discards events.
func NewWorker(id int, coord Coordinator, presenter events.Presenter, opts Options) *Worker {
	if opts.CheckEvery <= 0 {
		opts.CheckEvery = DefaultCheckEvery
	}
	if presenter == nil {
		presenter = events.Nop
	}
	logger := klog.WithWorker(id)
	if opts.Logger != nil {
		logger = opts.Logger.With().Int("worker", id).Logger()
	}
	w := &Worker{
		id:        id,
		coord:     coord,
		presenter: presenter,
		opts:      opts,
		logger:    logger,
	}
	w.lastHead.Store("")
	return w
}

// ID returns the worker id.
func (w *Worker) ID() int { return w.id }

// Run searches rounds until the coordinator shuts down or ctx is cancelled.
// Both are normal termination and return nil. A non-nil error means the
// coordinator reported a broken invariant.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug().Msg("Worker started")
	defer w.logger.Debug().Msg("Worker exited")

	for {
		if ctx.Err() != nil {
			return nil
		}
		tk, err := w.coord.AwaitRound(w.id)
		if errors.Is(err, round.ErrCancelled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker %d: await round: %w", w.id, err)
		}

		w.rounds.Add(1)
		w.presenter.Publish(events.WorkerSearching(w.id, tk.Round))

		nonce, found, err := w.search(ctx, tk)
		if err != nil {
			// Only cancellation ends a search with an error.
			return nil
		}
		if !found {
			continue
		}

		won, err := w.coord.SubmitSolution(w.id, tk.Round, nonce, tk.Payload, tk.PrevHash)
		if err != nil {
			return fmt.Errorf("worker %d: submit round %d: %w", w.id, tk.Round, err)
		}
		if !won {
			w.logger.Debug().Int("round", tk.Round).Uint64("nonce", nonce).Msg("Lost round")
			continue
		}

		head := puzzle.FormatHash(puzzle.Hash(tk.PrevHash, tk.Payload, nonce))
		w.wins.Add(1)
		w.lastHead.Store(head)
		w.logger.Debug().Int("round", tk.Round).Uint64("nonce", nonce).Str("head", head).Msg("Won round")
		w.presenter.Publish(events.WorkerSolved(w.id, tk.Round, nonce))
	}
}

// search iterates nonces from zero until one meets the live difficulty.
// It returns found=false when the round stops being live or the nonce
// space is exhausted, and ctx.Err() when cancelled.
func (w *Worker) search(ctx context.Context, tk round.Ticket) (uint64, bool, error) {
	h := puzzle.NewHasher(tk.PrevHash, tk.Payload)
	check := uint64(w.opts.CheckEvery)
	pace := uint64(0)
	if w.opts.PaceEvery > 0 && w.opts.PaceDelay > 0 {
		pace = uint64(w.opts.PaceEvery)
	}

	var pending uint64
	defer func() { w.attempts.Add(pending) }()

	for nonce := uint64(0); ; nonce++ {
		if nonce%check == 0 {
			w.attempts.Add(pending)
			pending = 0
			if ctx.Err() != nil {
				return 0, false, ctx.Err()
			}
			if !w.coord.Live(tk.Round) {
				return 0, false, nil
			}
		}
		if pace > 0 && nonce > 0 && nonce%pace == 0 {
			if err := sleep(ctx, w.opts.PaceDelay); err != nil {
				return 0, false, err
			}
		}

		pending++
		if puzzle.MeetsDifficulty(h.Sum(nonce), w.coord.Difficulty()) {
			return nonce, true, nil
		}
		if nonce == math.MaxUint64 {
			w.logger.Warn().Int("round", tk.Round).Msg("Nonce space exhausted, abandoning round")
			return 0, false, nil
		}
	}
}

// Stats returns the worker's counters.
func (w *Worker) Stats() Stats {
	return Stats{
		WorkerID: w.id,
		Rounds:   w.rounds.Load(),
		Wins:     w.wins.Load(),
		Attempts: w.attempts.Load(),
		LastHead: w.lastHead.Load().(string),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
