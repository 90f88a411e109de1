// Package rpc implements the JSON-RPC 2.0 control server for the
// simulation.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powrace/config"
	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/journal"
	klog "github.com/Klingon-tech/powrace/internal/log"
	"github.com/Klingon-tech/powrace/internal/miner"
	"github.com/Klingon-tech/powrace/internal/round"
)

// maxBodySize is the maximum allowed request body size (64 KB).
const maxBodySize = 1 << 16

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	coord       *round.Coordinator
	pool        *miner.Pool      // For per-worker stats (nil = omitted).
	feed        *events.Feed     // For events_recent (nil = disabled).
	bus         *events.Bus      // For the dropped-event counter (nil = omitted).
	journal     *journal.Journal // For ledger_getStats (nil = count from ledger).
	shutdownFn  func()           // Called by sim_shutdown (nil = coordinator only).
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.

	shutdownOnce sync.Once
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, coord *round.Coordinator, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:   addr,
		coord:  coord,
		logger: klog.RPC,
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// SetPool sets the worker pool reported by sim_getStatus.
func (s *Server) SetPool(p *miner.Pool) {
	s.pool = p
}

// SetFeed sets the recent-event buffer for events_recent.
func (s *Server) SetFeed(f *events.Feed) {
	s.feed = f
}

// SetBus sets the event bus whose drop counter sim_getStatus reports.
func (s *Server) SetBus(b *events.Bus) {
	s.bus = b
}

// SetJournal sets the block journal for ledger_getStats.
func (s *Server) SetJournal(j *journal.Journal) {
	s.journal = j
}

// SetShutdownFunc sets the function sim_shutdown runs in the background
// to stop the whole process.
func (s *Server) SetShutdownFunc(fn func()) {
	s.shutdownFn = fn
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if !s.clientAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	s.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	start := time.Now()
	result, rpcErr := s.call(&req)

	ev := s.logger.Debug()
	if rpcErr != nil {
		ev = ev.Int("code", rpcErr.Code)
	}
	ev.Str("method", req.Method).Dur("took", time.Since(start)).Msg("RPC call")

	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeJSON(w, resp)
}

// clientAllowed applies the IP allow-list. An empty list allows everyone.
func (s *Server) clientAllowed(r *http.Request) bool {
	if len(s.allowedNets) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && s.isIPAllowed(ip)
}

// call runs dispatch, turning a handler panic into an internal error so one
// bad request cannot take the daemon down.
func (s *Server) call(req *Request) (result interface{}, rpcErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("method", req.Method).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("RPC handler panicked")
			result, rpcErr = nil, &Error{Code: CodeInternalError, Message: "internal error"}
		}
	}()
	return s.dispatch(req)
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "sim_start":
		return s.handleSimStart(req)
	case "sim_stop":
		return s.handleSimStop(req)
	case "sim_setCapacity":
		return s.handleSimSetCapacity(req)
	case "sim_setDifficulty":
		return s.handleSimSetDifficulty(req)
	case "sim_getStatus":
		return s.handleSimGetStatus(req)
	case "sim_shutdown":
		return s.handleSimShutdown(req)
	case "ledger_getSnapshot":
		return s.handleLedgerGetSnapshot(req)
	case "ledger_getBlock":
		return s.handleLedgerGetBlock(req)
	case "ledger_getStats":
		return s.handleLedgerGetStats(req)
	case "journal_getBlocks":
		return s.handleJournalGetBlocks(req)
	case "journal_getBlock":
		return s.handleJournalGetBlock(req)
	case "journal_reset":
		return s.handleJournalReset(req)
	case "events_recent":
		return s.handleEventsRecent(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders echoes an allowed Origin back. A "*" entry allows any origin.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.corsOrigins) == 0 {
		return
	}

	switch {
	case slices.Contains(s.corsOrigins, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case slices.Contains(s.corsOrigins, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	default:
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
