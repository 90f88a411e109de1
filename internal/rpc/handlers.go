package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/internal/storage"
	"github.com/Klingon-tech/powrace/pkg/block"
)

// ── Simulation endpoints ────────────────────────────────────────────────

func (s *Server) handleSimStart(_ *Request) (interface{}, *Error) {
	if err := s.coord.Start(); err != nil {
		return nil, commandError(err)
	}
	return s.status(), nil
}

func (s *Server) handleSimStop(_ *Request) (interface{}, *Error) {
	if err := s.coord.Stop(); err != nil {
		return nil, commandError(err)
	}
	return s.status(), nil
}

func (s *Server) handleSimSetCapacity(req *Request) (interface{}, *Error) {
	var params CapacityParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.coord.SetCapacity(params.Capacity); err != nil {
		return nil, commandError(err)
	}
	s.logger.Info().Int("capacity", params.Capacity).Msg("Capacity changed")
	return s.status(), nil
}

func (s *Server) handleSimSetDifficulty(req *Request) (interface{}, *Error) {
	var params DifficultyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.coord.SetDifficulty(params.Difficulty); err != nil {
		return nil, commandError(err)
	}
	s.logger.Info().Int("difficulty", params.Difficulty).Msg("Difficulty changed")
	return s.status(), nil
}

func (s *Server) handleSimGetStatus(_ *Request) (interface{}, *Error) {
	res := s.status()
	if s.pool != nil {
		res.Workers = s.pool.Stats()
	}
	if s.bus != nil {
		res.EventsDropped = s.bus.Dropped()
	}
	return res, nil
}

func (s *Server) handleSimShutdown(_ *Request) (interface{}, *Error) {
	s.shutdownOnce.Do(func() {
		s.logger.Info().Msg("Shutdown requested over RPC")
		if s.shutdownFn == nil {
			s.coord.Shutdown()
			return
		}
		// Reply before the node starts tearing down; the daemon stops this
		// server once the workers have exited.
		go s.shutdownFn()
	})
	return &ShutdownResult{Shutdown: true}, nil
}

func (s *Server) status() *StatusResult {
	return NewStatusResult(s.coord.Status())
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetSnapshot(_ *Request) (interface{}, *Error) {
	blocks := s.coord.Snapshot()
	res := &SnapshotResult{
		Blocks:      make([]BlockResult, len(blocks)),
		Length:      len(blocks),
		Head:        block.Head(blocks),
		Fingerprint: block.Fingerprint(blocks).String(),
		Valid:       true,
	}
	for i, b := range blocks {
		res.Blocks[i] = NewBlockResult(b)
	}
	if err := block.VerifyChain(blocks); err != nil {
		res.Valid = false
		res.Error = err.Error()
	}
	return res, nil
}

func (s *Server) handleLedgerGetBlock(req *Request) (interface{}, *Error) {
	var params IndexParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Index < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "index must be non-negative"}
	}
	b, ok := s.coord.Block(params.Index)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no block at index %d", params.Index)}
	}
	return NewBlockResult(b), nil
}

func (s *Server) handleLedgerGetStats(_ *Request) (interface{}, *Error) {
	if s.journal != nil {
		st, err := s.journal.Stats()
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("journal: %v", err)}
		}
		return &LedgerStatsResult{Source: "journal", Blocks: st.Blocks, Wins: st.Wins, Errors: st.Errors, Gaps: st.Gaps}, nil
	}

	blocks := s.coord.Snapshot()
	wins := make(map[int]uint64)
	for _, b := range blocks {
		wins[b.WorkerID]++
	}
	return &LedgerStatsResult{Source: "ledger", Blocks: len(blocks), Wins: wins}, nil
}

// ── Journal endpoints ───────────────────────────────────────────────────

var errNoJournal = &Error{Code: CodeNotFound, Message: "journal not enabled"}

func (s *Server) handleJournalGetBlocks(_ *Request) (interface{}, *Error) {
	if s.journal == nil {
		return nil, errNoJournal
	}
	blocks, err := s.journal.Blocks()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("journal: %v", err)}
	}
	audit, err := s.journal.Compare(s.coord.Snapshot())
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("journal: %v", err)}
	}
	res := &JournalResult{
		Blocks: make([]BlockResult, len(blocks)),
		Audit:  audit,
		InSync: audit.InSync(),
	}
	for i, b := range blocks {
		res.Blocks[i] = NewBlockResult(b)
	}
	return res, nil
}

func (s *Server) handleJournalGetBlock(req *Request) (interface{}, *Error) {
	if s.journal == nil {
		return nil, errNoJournal
	}
	var params IndexParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Index < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "index must be non-negative"}
	}
	b, err := s.journal.Block(params.Index)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no journaled block at index %d", params.Index)}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return NewBlockResult(b), nil
}

func (s *Server) handleJournalReset(_ *Request) (interface{}, *Error) {
	if s.journal == nil {
		return nil, errNoJournal
	}
	if err := s.journal.Reset(); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("journal reset: %v", err)}
	}
	s.logger.Info().Msg("Journal reset over RPC")
	return s.handleLedgerGetStats(nil)
}

// ── Event endpoints ─────────────────────────────────────────────────────

func (s *Server) handleEventsRecent(req *Request) (interface{}, *Error) {
	if s.feed == nil {
		return nil, &Error{Code: CodeNotFound, Message: "event feed not enabled"}
	}
	var params SinceParam
	if req.Params != nil {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "limit must be non-negative"}
	}

	evs := s.feed.Since(params.Since, params.Limit)
	latest := params.Since
	if n := len(evs); n > 0 {
		latest = evs[n-1].Seq
	}
	return &EventsResult{Events: evs, Latest: latest}, nil
}

// commandError maps coordinator errors to JSON-RPC errors.
func commandError(err error) *Error {
	switch {
	case errors.Is(err, round.ErrInvalidArgument):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, round.ErrShutdown):
		return &Error{Code: CodeShuttingDown, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}
