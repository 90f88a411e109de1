package rpc

import (
	"time"

	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/journal"
	"github.com/Klingon-tech/powrace/internal/miner"
	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/pkg/block"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeShuttingDown   = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// ── Param types ─────────────────────────────────────────────────────────

// CapacityParam is used by sim_setCapacity.
type CapacityParam struct {
	Capacity int `json:"capacity"`
}

// DifficultyParam is used by sim_setDifficulty.
type DifficultyParam struct {
	Difficulty int `json:"difficulty"`
}

// IndexParam is used by ledger_getBlock and journal_getBlock.
type IndexParam struct {
	Index int `json:"index"`
}

// SinceParam is used by events_recent. Limit 0 means no limit.
type SinceParam struct {
	Since uint64 `json:"since"`
	Limit int    `json:"limit,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// StatusResult is returned by the sim_* methods.
type StatusResult struct {
	State         string        `json:"state"`
	Round         int           `json:"round"`
	Length        int           `json:"length"`
	Capacity      int           `json:"capacity"`
	Difficulty    int           `json:"difficulty"`
	Head          string        `json:"head"`
	Halted        bool          `json:"halted"`
	Transitions   uint64        `json:"transitions"`
	Workers       []miner.Stats `json:"workers,omitempty"`
	EventsDropped uint64        `json:"events_dropped,omitempty"`
}

// NewStatusResult converts a coordinator status.
func NewStatusResult(st round.Status) *StatusResult {
	return &StatusResult{
		State:       st.State.String(),
		Round:       st.Round,
		Length:      st.Length,
		Capacity:    st.Capacity,
		Difficulty:  st.Difficulty,
		Head:        st.Head,
		Halted:      st.Halted(),
		Transitions: st.Transitions,
	}
}

// BlockResult wraps a block with its precomputed hashes for RPC responses.
type BlockResult struct {
	Index     int       `json:"index"`
	WorkerID  int       `json:"worker_id"`
	CreatedAt time.Time `json:"created_at"`
	Payload   string    `json:"payload"`
	Nonce     uint64    `json:"nonce"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
	Digest    string    `json:"digest"`
}

// NewBlockResult creates a BlockResult from a block.
func NewBlockResult(b block.Block) BlockResult {
	return BlockResult{
		Index:     b.Index,
		WorkerID:  b.WorkerID,
		CreatedAt: b.CreatedAt,
		Payload:   b.Payload,
		Nonce:     b.Nonce,
		PrevHash:  b.PrevHash,
		Hash:      b.HashHex(),
		Digest:    b.Digest().String(),
	}
}

// Block converts the result back to a block.
func (r BlockResult) Block() block.Block {
	return block.Block{
		Index:     r.Index,
		WorkerID:  r.WorkerID,
		CreatedAt: r.CreatedAt,
		Payload:   r.Payload,
		Nonce:     r.Nonce,
		PrevHash:  r.PrevHash,
	}
}

// SnapshotResult is returned by ledger_getSnapshot.
type SnapshotResult struct {
	Blocks      []BlockResult `json:"blocks"`
	Length      int           `json:"length"`
	Head        string        `json:"head"`
	Fingerprint string        `json:"fingerprint"`
	Valid       bool          `json:"valid"`
	Error       string        `json:"error,omitempty"`
}

// LedgerStatsResult is returned by ledger_getStats. Source is "journal"
// when the counts come from the block journal and "ledger" otherwise.
type LedgerStatsResult struct {
	Source string         `json:"source"`
	Blocks int            `json:"blocks"`
	Wins   map[int]uint64 `json:"wins"`
	Errors uint64         `json:"errors,omitempty"`
	Gaps   uint64         `json:"gaps,omitempty"`
}

// JournalResult is returned by journal_getBlocks: the journaled blocks and
// an audit against the live ledger.
type JournalResult struct {
	Blocks []BlockResult `json:"blocks"`
	Audit  journal.Audit `json:"audit"`
	InSync bool          `json:"in_sync"`
}

// EventsResult is returned by events_recent. Latest is the sequence number
// to pass as since on the next call.
type EventsResult struct {
	Events []events.Event `json:"events"`
	Latest uint64         `json:"latest"`
}

// ShutdownResult is returned by sim_shutdown.
type ShutdownResult struct {
	Shutdown bool `json:"shutdown"`
}
