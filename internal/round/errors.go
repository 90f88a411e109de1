package round

import "errors"

// Coordinator errors.
var (
	// ErrInvalidArgument reports a command rejected by validation. No state
	// was changed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfMemory reports a failed ledger reallocation. The ledger keeps
	// its previous capacity; the caller may retry with a smaller value.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvariantViolation reports a coordination bug, such as an append
	// admitted past capacity. It is never caused by caller input.
	ErrInvariantViolation = errors.New("round invariant violated")

	// ErrCancelled is returned by AwaitRound once the coordinator is shutting
	// down. It is a normal termination signal, not a failure.
	ErrCancelled = errors.New("round coordinator cancelled")

	// ErrShutdown is returned by commands issued after Shutdown.
	ErrShutdown = errors.New("round coordinator is shut down")
)
