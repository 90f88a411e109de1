// Package node assembles a complete mining race (coordinator, worker pool,
// event bus, journal and RPC server) that can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powrace/config"
	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/journal"
	klog "github.com/Klingon-tech/powrace/internal/log"
	"github.com/Klingon-tech/powrace/internal/miner"
	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/internal/rpc"
	"github.com/Klingon-tech/powrace/internal/storage"
	"github.com/Klingon-tech/powrace/pkg/block"
)

// Node is a fully-initialized mining race.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Events
	bus  *events.Bus
	feed *events.Feed

	// Journal
	db      storage.DB
	journal *journal.Journal

	// Core
	coord *round.Coordinator
	pool  *miner.Pool

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	poolErr  error
	started  atomic.Bool
	stopOnce sync.Once
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, event bus, journal, coordinator, pool, RPC) but does NOT start
// the workers. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "powraced.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	logger.Info().
		Int("workers", cfg.Sim.Workers).
		Int("capacity", cfg.Sim.Capacity).
		Int("difficulty", cfg.Sim.Difficulty).
		Str("log_file", klog.File()).
		Msg("Starting powrace node")

	// ── 2. Event bus ────────────────────────────────────────────────
	bus := events.NewBus(cfg.Events.Buffer, klog.Events)
	bus.Subscribe(events.LogHandler(klog.Events))

	var feed *events.Feed
	if cfg.Events.Feed > 0 {
		feed = events.NewFeed(cfg.Events.Feed)
		bus.Subscribe(feed.Handle)
	}

	// ── 3. Journal ──────────────────────────────────────────────────
	var (
		db  storage.DB
		jrn *journal.Journal
	)
	if cfg.Journal.Enabled {
		var err error
		db, err = openJournalDB(cfg.Journal)
		if err != nil {
			bus.Close()
			klog.Close()
			return nil, err
		}
		jrn = journal.New(db, klog.Journal)
		bus.Subscribe(jrn.Handle)
		logger.Info().
			Str("backend", cfg.Journal.Backend).
			Str("path", cfg.Journal.Path).
			Msg("Journal opened")
	}

	// ── 4. Coordinator + workers ────────────────────────────────────
	coord, err := round.New(round.Config{
		Capacity:   cfg.Sim.Capacity,
		Difficulty: cfg.Sim.Difficulty,
	}, bus)
	if err != nil {
		bus.Close()
		closeDB(db)
		klog.Close()
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	pool := miner.NewPool(cfg.Sim.Workers, coord, bus, miner.Options{
		CheckEvery: cfg.Sim.CheckEvery,
		PaceEvery:  cfg.Sim.PaceEvery,
		PaceDelay:  cfg.Sim.PaceDelay(),
	})

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		feed:    feed,
		db:      db,
		journal: jrn,
		coord:   coord,
		pool:    pool,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// ── 5. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		srv := rpc.New(cfg.RPC.ListenAddr(), coord, cfg.RPC)
		srv.SetPool(pool)
		srv.SetBus(bus)
		if feed != nil {
			srv.SetFeed(feed)
		}
		if jrn != nil {
			srv.SetJournal(jrn)
		}
		srv.SetShutdownFunc(n.Shutdown)
		if err := srv.Start(); err != nil {
			cancel()
			bus.Close()
			closeDB(db)
			klog.Close()
			return nil, fmt.Errorf("start rpc: %w", err)
		}
		n.rpcServer = srv
		logger.Info().Str("addr", srv.Addr()).Msg("RPC server started")
	}

	return n, nil
}

// Start launches the worker pool. With sim.autostart the simulation also
// begins running; otherwise workers park until a start command.
func (n *Node) Start() error {
	if !n.started.CompareAndSwap(false, true) {
		return errors.New("node already started")
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(n.done)
		if err := n.pool.Run(n.ctx); err != nil {
			n.poolErr = err
			n.logger.Error().Err(err).Msg("Worker pool failed")
		}
	}()

	if n.cfg.Sim.AutoStart {
		if err := n.coord.Start(); err != nil {
			return fmt.Errorf("start simulation: %w", err)
		}
	}

	n.logger.Info().
		Int("workers", n.pool.Size()).
		Bool("autostart", n.cfg.Sim.AutoStart).
		Msg("Node started successfully")

	return nil
}

// Shutdown asks the node to exit. Workers are released and Done is closed
// once they have all returned. Safe to call more than once.
func (n *Node) Shutdown() {
	n.coord.Shutdown()
}

// Done is closed when the worker pool started by Start has exited.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Err returns the worker pool error, if any. Valid after Done is closed.
func (n *Node) Err() error {
	return n.poolErr
}

// Stop shuts everything down and waits for the workers. The event bus is
// drained before the journal storage is closed.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.coord.Shutdown()
		n.cancel()
		n.wg.Wait()

		if n.rpcServer != nil {
			if err := n.rpcServer.Stop(); err != nil {
				n.logger.Warn().Err(err).Msg("RPC server shutdown")
			}
		}

		st := n.coord.Status()
		fp := block.Fingerprint(n.coord.Snapshot())
		n.bus.Close()

		if n.journal != nil {
			if js, err := n.journal.Stats(); err == nil {
				n.logger.Info().Int("blocks", js.Blocks).Msg("Journal flushed")
			}
		}
		closeDB(n.db)

		n.logger.Info().
			Int("blocks", st.Length).
			Str("head", st.Head).
			Str("fingerprint", fp.Short()).
			Uint64("events_dropped", n.bus.Dropped()).
			Msg("Goodbye!")
		klog.Close()
	})
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Coordinator returns the round coordinator.
func (n *Node) Coordinator() *round.Coordinator {
	return n.coord
}

// Journal returns the block journal, or nil when it is disabled.
func (n *Node) Journal() *journal.Journal {
	return n.journal
}

// Pool returns the worker pool.
func (n *Node) Pool() *miner.Pool {
	return n.pool
}
