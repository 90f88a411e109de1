package miner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/pkg/block"
	"github.com/Klingon-tech/powrace/pkg/puzzle"
)

// --- fakeCoordinator ---

type fakeCoordinator struct {
	live       atomic.Bool
	difficulty atomic.Int64
	liveCalls  atomic.Int64
}

func newFake(difficulty int) *fakeCoordinator {
	f := &fakeCoordinator{}
	f.live.Store(true)
	f.difficulty.Store(int64(difficulty))
	return f
}

func (f *fakeCoordinator) AwaitRound(int) (round.Ticket, error) {
	return round.Ticket{}, round.ErrCancelled
}

func (f *fakeCoordinator) SubmitSolution(int, int, uint64, string, string) (bool, error) {
	return false, nil
}

func (f *fakeCoordinator) Live(int) bool {
	f.liveCalls.Add(1)
	return f.live.Load()
}

func (f *fakeCoordinator) Difficulty() int { return int(f.difficulty.Load()) }
func (f *fakeCoordinator) Shutdown()       {}

func quietOptions() Options {
	nop := zerolog.Nop()
	return Options{CheckEvery: 64, Logger: &nop}
}

var testTicket = round.Ticket{Round: 0, Difficulty: 1, Payload: "block 0", PrevHash: puzzle.Genesis}

// --- search ---

func TestSearch_FindsValidNonce(t *testing.T) {
	w := NewWorker(0, newFake(1), nil, quietOptions())

	nonce, found, err := w.search(context.Background(), testTicket)
	if err != nil || !found {
		t.Fatalf("search = %d, %v, %v", nonce, found, err)
	}
	if !puzzle.MeetsDifficulty(puzzle.Hash(testTicket.PrevHash, testTicket.Payload, nonce), 1) {
		t.Errorf("nonce %d does not meet difficulty 1", nonce)
	}
	for n := uint64(0); n < nonce; n++ {
		if puzzle.MeetsDifficulty(puzzle.Hash(testTicket.PrevHash, testTicket.Payload, n), 1) {
			t.Fatalf("search skipped earlier solution %d", n)
		}
	}
	if got := w.Stats().Attempts; got != nonce+1 {
		t.Errorf("attempts = %d, want %d", got, nonce+1)
	}
}

func TestSearch_AbandonsWhenNotLive(t *testing.T) {
	f := newFake(puzzle.MaxDifficulty)
	f.live.Store(false)
	w := NewWorker(0, f, nil, quietOptions())

	_, found, err := w.search(context.Background(), testTicket)
	if err != nil || found {
		t.Fatalf("search = %v, %v; want abandoned", found, err)
	}
	if f.liveCalls.Load() != 1 {
		t.Errorf("liveness checked %d times, want 1", f.liveCalls.Load())
	}
}

func TestSearch_AbandonsMidRound(t *testing.T) {
	f := newFake(puzzle.MaxDifficulty)
	w := NewWorker(0, f, nil, quietOptions())

	done := make(chan bool, 1)
	go func() {
		_, found, _ := w.search(context.Background(), testTicket)
		done <- found
	}()
	time.Sleep(10 * time.Millisecond)
	f.live.Store(false)

	select {
	case found := <-done:
		if found {
			t.Error("search reported a solution after the round closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search did not notice the round closing")
	}
}

func TestSearch_ReadsLiveDifficulty(t *testing.T) {
	f := newFake(puzzle.MaxDifficulty)
	w := NewWorker(0, f, nil, quietOptions())

	done := make(chan uint64, 1)
	go func() {
		nonce, _, _ := w.search(context.Background(), testTicket)
		done <- nonce
	}()
	time.Sleep(10 * time.Millisecond)
	f.difficulty.Store(1)

	select {
	case nonce := <-done:
		if !puzzle.MeetsDifficulty(puzzle.Hash(testTicket.PrevHash, testTicket.Payload, nonce), 1) {
			t.Errorf("nonce %d does not meet the lowered difficulty", nonce)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search did not pick up the lowered difficulty")
	}
}

func TestSearch_CancelDuringPace(t *testing.T) {
	opts := quietOptions()
	opts.PaceEvery = 1
	opts.PaceDelay = time.Hour
	w := NewWorker(0, newFake(puzzle.MaxDifficulty), nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := w.search(ctx, testTicket)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pacing sleep ignored cancellation")
	}
}

func TestWorker_RunReturnsOnCancelled(t *testing.T) {
	w := NewWorker(3, newFake(1), nil, quietOptions())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := w.Stats(); st.WorkerID != 3 || st.Rounds != 0 {
		t.Errorf("stats = %+v", st)
	}
}

// --- Pool against a real coordinator ---

func testCoordinator(t *testing.T, capacity, difficulty int, presenter events.Presenter) *round.Coordinator {
	t.Helper()
	nop := zerolog.Nop()
	c, err := round.New(round.Config{Capacity: capacity, Difficulty: difficulty, Logger: &nop}, presenter)
	if err != nil {
		t.Fatalf("round.New: %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type countingPresenter struct {
	mu     sync.Mutex
	counts map[events.Kind]int
}

func (p *countingPresenter) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = make(map[events.Kind]int)
	}
	p.counts[e.Kind]++
}

func (p *countingPresenter) count(k events.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[k]
}

func TestPool_HaltsAtCapacity(t *testing.T) {
	pres := &countingPresenter{}
	coord := testCoordinator(t, 3, 1, pres)
	pool := NewPool(3, coord, pres, quietOptions())

	errc := make(chan error, 1)
	go func() { errc <- pool.Run(context.Background()) }()

	coord.Start()
	waitFor(t, "ledger to fill", func() bool { return coord.Status().Halted() })

	// Nothing more may be appended while halted.
	time.Sleep(20 * time.Millisecond)
	snap := coord.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("ledger length = %d, want 3", len(snap))
	}
	if err := block.VerifyChain(snap); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	for _, b := range snap {
		if !puzzle.MeetsDifficulty(puzzle.Hash(b.PrevHash, b.Payload, b.Nonce), 1) {
			t.Errorf("block %d does not meet difficulty", b.Index)
		}
	}

	coord.Shutdown()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not exit after shutdown")
	}

	var wins uint64
	for _, st := range pool.Stats() {
		wins += st.Wins
	}
	if wins != 3 {
		t.Errorf("total wins = %d, want 3", wins)
	}
	if got := pres.count(events.KindWorkerSolved); got != 3 {
		t.Errorf("solved events = %d, want 3", got)
	}
	if got := pres.count(events.KindLedgerAppended); got != 3 {
		t.Errorf("appended events = %d, want 3", got)
	}
}

func TestPool_WinnerRecordsHead(t *testing.T) {
	coord := testCoordinator(t, 1, 1, nil)
	pool := NewPool(1, coord, nil, quietOptions())

	errc := make(chan error, 1)
	go func() { errc <- pool.Run(context.Background()) }()
	coord.Start()
	waitFor(t, "first block", func() bool { return coord.Status().Length == 1 })
	coord.Shutdown()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := pool.Stats()[0]
	if st.Wins != 1 || st.LastHead != coord.Status().Head {
		t.Errorf("stats = %+v, head = %s", st, coord.Status().Head)
	}
}

func TestPool_CancelReleasesParkedWorkers(t *testing.T) {
	coord := testCoordinator(t, 3, 1, nil)
	pool := NewPool(4, coord, nil, quietOptions())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()

	// Never started: every worker is parked in AwaitRound.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not exit after cancel")
	}
	if coord.Status().State != round.StateExiting {
		t.Error("coordinator should be shut down")
	}
}

func TestPool_ResumeAfterStop(t *testing.T) {
	coord := testCoordinator(t, 4, 1, nil)
	pool := NewPool(2, coord, nil, quietOptions())

	errc := make(chan error, 1)
	go func() { errc <- pool.Run(context.Background()) }()

	coord.Start()
	waitFor(t, "a block", func() bool { return coord.Status().Length >= 1 })
	coord.Stop()
	n := coord.Status().Length

	time.Sleep(20 * time.Millisecond)
	if got := coord.Status().Length; got != n {
		t.Fatalf("ledger grew while stopped: %d -> %d", n, got)
	}

	coord.Start()
	waitFor(t, "full ledger", func() bool { return coord.Status().Halted() })
	coord.Shutdown()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := block.VerifyChain(coord.Snapshot()); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}
}
