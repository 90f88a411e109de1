// Package rpcclient provides a JSON-RPC 2.0 client for powraced.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/powrace/internal/rpc"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsCode reports whether err is an RPCError with the given code.
func IsCode(err error, code int) bool {
	var rerr *RPCError
	return errors.As(err, &rerr) && rerr.Code == code
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call with a context bounding the HTTP round trip.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	id := int(c.nextID.Add(1))
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.ID != id && rpcResp.Error == nil {
		return fmt.Errorf("response id %d does not match request id %d", rpcResp.ID, id)
	}
	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// ── Typed helpers ───────────────────────────────────────────────────────

// Start starts or resumes the simulation.
func (c *Client) Start() (*rpc.StatusResult, error) {
	var res rpc.StatusResult
	return &res, c.Call("sim_start", nil, &res)
}

// Stop pauses the simulation.
func (c *Client) Stop() (*rpc.StatusResult, error) {
	var res rpc.StatusResult
	return &res, c.Call("sim_stop", nil, &res)
}

// SetCapacity changes the ledger capacity.
func (c *Client) SetCapacity(n int) (*rpc.StatusResult, error) {
	var res rpc.StatusResult
	return &res, c.Call("sim_setCapacity", rpc.CapacityParam{Capacity: n}, &res)
}

// SetDifficulty changes the difficulty.
func (c *Client) SetDifficulty(d int) (*rpc.StatusResult, error) {
	var res rpc.StatusResult
	return &res, c.Call("sim_setDifficulty", rpc.DifficultyParam{Difficulty: d}, &res)
}

// Status returns the simulation status with per-worker stats.
func (c *Client) Status() (*rpc.StatusResult, error) {
	var res rpc.StatusResult
	return &res, c.Call("sim_getStatus", nil, &res)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() error {
	return c.Call("sim_shutdown", nil, nil)
}

// Snapshot returns the committed ledger.
func (c *Client) Snapshot() (*rpc.SnapshotResult, error) {
	var res rpc.SnapshotResult
	return &res, c.Call("ledger_getSnapshot", nil, &res)
}

// Block returns the committed block at index i.
func (c *Client) Block(i int) (*rpc.BlockResult, error) {
	var res rpc.BlockResult
	return &res, c.Call("ledger_getBlock", rpc.IndexParam{Index: i}, &res)
}

// Stats returns per-worker win counts.
func (c *Client) Stats() (*rpc.LedgerStatsResult, error) {
	var res rpc.LedgerStatsResult
	return &res, c.Call("ledger_getStats", nil, &res)
}

// Events returns events with sequence numbers above since.
func (c *Client) Events(since uint64, limit int) (*rpc.EventsResult, error) {
	var res rpc.EventsResult
	return &res, c.Call("events_recent", rpc.SinceParam{Since: since, Limit: limit}, &res)
}

// JournalBlocks returns the journaled blocks with an audit against the ledger.
func (c *Client) JournalBlocks() (*rpc.JournalResult, error) {
	var res rpc.JournalResult
	return &res, c.Call("journal_getBlocks", nil, &res)
}

// JournalBlock returns the journaled copy of block i.
func (c *Client) JournalBlock(i int) (*rpc.BlockResult, error) {
	var res rpc.BlockResult
	return &res, c.Call("journal_getBlock", rpc.IndexParam{Index: i}, &res)
}

// ResetJournal clears the journal and returns the emptied stats.
func (c *Client) ResetJournal() (*rpc.LedgerStatsResult, error) {
	var res rpc.LedgerStatsResult
	return &res, c.Call("journal_reset", nil, &res)
}
