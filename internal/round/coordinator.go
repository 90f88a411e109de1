// Package round implements the round coordinator: it owns the ledger and
// the round state, admits workers to search one round at a time, and
// arbitrates exactly one winner per round.
package round

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/ledger"
	klog "github.com/Klingon-tech/powrace/internal/log"
	"github.com/Klingon-tech/powrace/pkg/block"
	"github.com/Klingon-tech/powrace/pkg/puzzle"
	"github.com/rs/zerolog"
)

// Capacity bounds accepted by SetCapacity.
const (
	MinCapacity = 1
	MaxCapacity = 100
)

// Defaults used when Config leaves a field zero.
const (
	DefaultCapacity   = 20
	DefaultDifficulty = 4
)

// Config holds the initial coordinator settings.
type Config struct {
	Capacity   int
	Difficulty int

	// Payload returns the payload every worker hashes for a round.
	// Defaults to DefaultPayload.
	Payload func(round int) string

	// Clock stamps committed blocks. Defaults to time.Now in UTC.
	Clock func() time.Time

	// Logger defaults to the round component logger.
	Logger *zerolog.Logger
}

// DefaultPayload describes a round.
func DefaultPayload(round int) string {
	return fmt.Sprintf("block %d", round)
}

// Ticket is the immutable snapshot of round parameters handed to a worker
// admitted to search.
type Ticket struct {
	Round      int    `json:"round"`
	Difficulty int    `json:"difficulty"`
	Payload    string `json:"payload"`
	PrevHash   string `json:"prev_hash"`
}

// Coordinator owns the round state and the ledger.
//
// Every field below mu is guarded by mu. The atomics mirror running,
// currentRound, capacity and difficulty; they are written only while holding mu and
// let workers poll on the hot path without contending for the lock.
type Coordinator struct {
	ledger    *ledger.Ledger
	presenter events.Presenter
	logger    zerolog.Logger
	payload   func(int) string
	clock     func() time.Time

	mu             sync.Mutex
	cond           *sync.Cond
	currentRound   int
	running        bool
	winnerDeclared bool
	difficulty     int
	exiting        bool
	generation     uint64

	liveRunning    atomic.Bool
	liveRound      atomic.Int64
	liveCapacity   atomic.Int64
	liveDifficulty atomic.Int64
}

// New creates a stopped coordinator with an empty ledger.
func New(cfg Config, presenter events.Presenter) (*Coordinator, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Difficulty == 0 {
		cfg.Difficulty = DefaultDifficulty
	}
	if err := validateCapacity(cfg.Capacity); err != nil {
		return nil, err
	}
	if err := validateDifficulty(cfg.Difficulty); err != nil {
		return nil, err
	}
	if cfg.Payload == nil {
		cfg.Payload = DefaultPayload
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if presenter == nil {
		presenter = events.Nop
	}
	logger := klog.Round
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	l, err := ledger.New(cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	c := &Coordinator{
		ledger:     l,
		presenter:  presenter,
		logger:     logger,
		payload:    cfg.Payload,
		clock:      cfg.Clock,
		difficulty: cfg.Difficulty,
	}
	c.cond = sync.NewCond(&c.mu)
	c.syncLocked()
	return c, nil
}

// Start resumes the simulation at round ledger.Len(). Starting a running
// coordinator is a no-op.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exiting {
		return ErrShutdown
	}
	if c.running {
		return nil
	}
	c.running = true
	c.winnerDeclared = false
	c.currentRound = c.ledger.Len()
	c.broadcastLocked()

	c.logger.Info().
		Int("round", c.currentRound).
		Int("capacity", c.ledger.Cap()).
		Int("difficulty", c.difficulty).
		Msg("Simulation started")
	c.presenter.Publish(events.SimStarted(c.currentRound))
	return nil
}

// Stop pauses the simulation. Searching workers notice within one polling
// interval; parked workers stay parked. Stopping a stopped coordinator is a
// no-op.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false
	c.broadcastLocked()

	c.logger.Info().Int("round", c.currentRound).Msg("Simulation stopped")
	c.presenter.Publish(events.SimStopped(c.currentRound))
	return nil
}

// Shutdown moves the coordinator to its terminal state and releases every
// parked worker with ErrCancelled. Safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exiting {
		return
	}
	c.exiting = true
	c.running = false
	c.broadcastLocked()

	c.logger.Info().Int("round", c.currentRound).Int("blocks", c.ledger.Len()).Msg("Simulation exiting")
	c.presenter.Publish(events.SimExiting(c.currentRound))
}

// SetCapacity changes the ledger capacity. n must be in
// [MinCapacity, MaxCapacity] and not below the committed length.
func (c *Coordinator) SetCapacity(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exiting {
		return ErrShutdown
	}
	if err := validateCapacity(n); err != nil {
		return err
	}
	if length := c.ledger.Len(); n < length {
		return fmt.Errorf("%w: capacity %d is below committed length %d", ErrInvalidArgument, n, length)
	}
	if err := c.ledger.Resize(n); err != nil {
		if errors.Is(err, ledger.ErrOutOfMemory) {
			return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	// Growing may admit workers parked at the old bound; shrinking to the
	// committed length must stop the search for the current round.
	c.broadcastLocked()

	c.presenter.Publish(events.CapacityChanged(c.currentRound, n))
	return nil
}

// SetDifficulty changes the difficulty used by subsequent hash attempts.
// In-flight searches pick it up on their next attempt; it is not tied to a
// round.
func (c *Coordinator) SetDifficulty(d int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exiting {
		return ErrShutdown
	}
	if err := validateDifficulty(d); err != nil {
		return err
	}
	c.difficulty = d
	c.syncLocked()

	c.presenter.Publish(events.DifficultyChanged(c.currentRound, d))
	return nil
}

// AwaitRound parks the caller until a round may be searched, then returns
// its ticket. It returns ErrCancelled once Shutdown has been called.
func (c *Coordinator) AwaitRound(workerID int) (Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.exiting && !c.admissibleLocked() {
		c.cond.Wait()
	}
	if c.exiting {
		return Ticket{}, ErrCancelled
	}
	return Ticket{
		Round:      c.currentRound,
		Difficulty: c.difficulty,
		Payload:    c.payload(c.currentRound),
		PrevHash:   c.ledger.Head(),
	}, nil
}

// SubmitSolution offers a solution for round. It returns true iff this call
// won the round and its block was appended. A false return with a nil error
// means the candidate lost or was stale and should be discarded.
func (c *Coordinator) SubmitSolution(workerID, round int, nonce uint64, payload, prevHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exiting || !c.running || c.winnerDeclared || round != c.currentRound {
		return false, nil
	}
	if c.currentRound >= c.ledger.Cap() {
		return false, nil
	}
	if prevHash != c.ledger.Head() || payload != c.payload(round) {
		c.logger.Warn().Int("worker", workerID).Int("round", round).Msg("Rejected solution with stale ticket")
		return false, nil
	}
	if !puzzle.MeetsDifficulty(puzzle.Hash(prevHash, payload, nonce), puzzle.MinDifficulty) {
		c.logger.Warn().Int("worker", workerID).Int("round", round).Uint64("nonce", nonce).Msg("Rejected invalid solution")
		return false, nil
	}

	c.winnerDeclared = true
	b, err := c.ledger.Append(block.Block{
		WorkerID:  workerID,
		CreatedAt: c.clock(),
		Payload:   payload,
		Nonce:     nonce,
		PrevHash:  prevHash,
	})
	if err != nil {
		c.winnerDeclared = false
		c.logger.Error().Err(err).Int("round", round).Msg("Append admitted past capacity")
		return false, fmt.Errorf("%w: round %d: %w", ErrInvariantViolation, round, err)
	}
	c.currentRound++
	c.winnerDeclared = false
	c.broadcastLocked()

	c.presenter.Publish(events.LedgerAppended(b))
	return true, nil
}

// Live reports, without locking, whether a search for round is still worth
// continuing: the simulation is running, round has not been decided, and
// the ledger still has room for it.
func (c *Coordinator) Live(round int) bool {
	r := int64(round)
	return c.liveRunning.Load() && c.liveRound.Load() == r && r < c.liveCapacity.Load()
}

// Difficulty returns the current difficulty without locking.
func (c *Coordinator) Difficulty() int {
	return int(c.liveDifficulty.Load())
}

// Snapshot returns a copy of the committed blocks.
func (c *Coordinator) Snapshot() []block.Block {
	return c.ledger.Snapshot()
}

// Block returns the committed block at index i.
func (c *Coordinator) Block(i int) (block.Block, bool) {
	return c.ledger.Get(i)
}

// admissibleLocked reports whether a worker may start searching.
func (c *Coordinator) admissibleLocked() bool {
	return c.running && !c.winnerDeclared && c.currentRound < c.ledger.Cap()
}

// broadcastLocked publishes state to the lock-free mirrors and wakes every
// parked worker.
func (c *Coordinator) broadcastLocked() {
	c.generation++
	c.syncLocked()
	c.cond.Broadcast()
}

func (c *Coordinator) syncLocked() {
	c.liveRunning.Store(c.running && !c.exiting)
	c.liveRound.Store(int64(c.currentRound))
	c.liveCapacity.Store(int64(c.ledger.Cap()))
	c.liveDifficulty.Store(int64(c.difficulty))
}

func validateCapacity(n int) error {
	if n < MinCapacity || n > MaxCapacity {
		return fmt.Errorf("%w: capacity must be in [%d, %d], got %d", ErrInvalidArgument, MinCapacity, MaxCapacity, n)
	}
	return nil
}

func validateDifficulty(d int) error {
	if !puzzle.ValidDifficulty(d) {
		return fmt.Errorf("%w: difficulty must be in [%d, %d], got %d",
			ErrInvalidArgument, puzzle.MinDifficulty, puzzle.MaxDifficulty, d)
	}
	return nil
}
