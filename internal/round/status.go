package round

// State is the coordinator lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateExiting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Status is a consistent point-in-time view of the round state.
type Status struct {
	State       State
	Round       int
	Length      int
	Capacity    int
	Difficulty  int
	Head        string
	Transitions uint64 // Number of wake broadcasts so far.
}

// Halted reports whether the simulation is running but cannot admit another
// round because the ledger is full.
func (s Status) Halted() bool {
	return s.State == StateRunning && s.Round >= s.Capacity
}

// Status returns the current round state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := StateStopped
	switch {
	case c.exiting:
		st = StateExiting
	case c.running:
		st = StateRunning
	}
	return Status{
		State:       st,
		Round:       c.currentRound,
		Length:      c.ledger.Len(),
		Capacity:    c.ledger.Cap(),
		Difficulty:  c.difficulty,
		Head:        c.ledger.Head(),
		Transitions: c.generation,
	}
}
