// Package events carries status notifications from the round coordinator
// and workers to presenters. Delivery is best-effort: publishers never
// block, and events may be dropped under backpressure.
package events

import (
	"time"

	"github.com/Klingon-tech/powrace/pkg/block"
)

// Kind identifies an event. Convention: "category.action".
type Kind string

const (
	KindWorkerSearching   Kind = "worker.searching"
	KindWorkerSolved      Kind = "worker.solved"
	KindLedgerAppended    Kind = "ledger.appended"
	KindSimStarted        Kind = "sim.started"
	KindSimStopped        Kind = "sim.stopped"
	KindSimExiting        Kind = "sim.exiting"
	KindCapacityChanged   Kind = "config.capacity"
	KindDifficultyChanged Kind = "config.difficulty"
)

// Event is a single status notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Seq        uint64       `json:"seq"`
	Kind       Kind         `json:"kind"`
	Time       time.Time    `json:"time"`
	WorkerID   int          `json:"worker_id,omitempty"`
	Round      int          `json:"round"`
	Nonce      uint64       `json:"nonce,omitempty"`
	Block      *block.Block `json:"block,omitempty"`
	Capacity   int          `json:"capacity,omitempty"`
	Difficulty int          `json:"difficulty,omitempty"`
}

// Presenter consumes events. Publish must not block.
type Presenter interface {
	Publish(Event)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Event)

// Publish calls f(e).
func (f PresenterFunc) Publish(e Event) { f(e) }

// Nop discards every event.
var Nop Presenter = PresenterFunc(func(Event) {})

// WorkerSearching reports that a worker began searching a round.
func WorkerSearching(workerID, round int) Event {
	return Event{Kind: KindWorkerSearching, WorkerID: workerID, Round: round}
}

// WorkerSolved reports that a worker's solution won a round.
func WorkerSolved(workerID, round int, nonce uint64) Event {
	return Event{Kind: KindWorkerSolved, WorkerID: workerID, Round: round, Nonce: nonce}
}

// LedgerAppended reports a committed block.
func LedgerAppended(b block.Block) Event {
	return Event{Kind: KindLedgerAppended, WorkerID: b.WorkerID, Round: b.Index, Nonce: b.Nonce, Block: &b}
}

// SimStarted reports a Stopped to Running transition.
func SimStarted(round int) Event {
	return Event{Kind: KindSimStarted, Round: round}
}

// SimStopped reports a Running to Stopped transition.
func SimStopped(round int) Event {
	return Event{Kind: KindSimStopped, Round: round}
}

// SimExiting reports the terminal shutdown.
func SimExiting(round int) Event {
	return Event{Kind: KindSimExiting, Round: round}
}

// CapacityChanged reports a ledger resize.
func CapacityChanged(round, capacity int) Event {
	return Event{Kind: KindCapacityChanged, Round: round, Capacity: capacity}
}

// DifficultyChanged reports a difficulty change.
func DifficultyChanged(round, difficulty int) Event {
	return Event{Kind: KindDifficultyChanged, Round: round, Difficulty: difficulty}
}
