package node

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Klingon-tech/powrace/config"
	klog "github.com/Klingon-tech/powrace/internal/log"
	"github.com/Klingon-tech/powrace/internal/round"
	"github.com/Klingon-tech/powrace/internal/rpcclient"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.powrace/journal", filepath.Join(home, ".powrace/journal")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestOpenJournalDB(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.JournalConfig
		wantErr bool
	}{
		{"memory", config.JournalConfig{Backend: config.JournalMemory}, false},
		{"badger in-memory", config.JournalConfig{Backend: config.JournalBadger}, false},
		{"badger on disk", config.JournalConfig{Backend: config.JournalBadger, Path: filepath.Join(t.TempDir(), "journal")}, false},
		{"unknown", config.JournalConfig{Backend: "bolt"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := openJournalDB(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openJournalDB: %v", err)
			}
			if err := db.Put([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			db.Close()
		})
	}
}

// testConfig returns a fast, quiet config rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Log.Level = "error"
	cfg.Log.File = filepath.Join(cfg.DataDir, "test.log")
	cfg.Sim.Workers = 3
	cfg.Sim.Capacity = 4
	cfg.Sim.Difficulty = 1
	cfg.Sim.PaceEvery = 0
	cfg.Sim.CheckEvery = 16
	cfg.RPC.Port = 0
	return cfg
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

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sim.Workers = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestNew_RPCPortBusyClosesLogFile(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.RPC.Addr = "127.0.0.1"
	cfg.RPC.Port = ln.Addr().(*net.TCPAddr).Port

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for busy RPC port")
	}
	if f := klog.File(); f != "" {
		t.Fatalf("log file %q left open after failed New", f)
	}
}

func TestNode_StopClosesLogFile(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f := klog.File(); f != cfg.Log.File {
		t.Fatalf("log file = %q, want %q", f, cfg.Log.File)
	}
	n.Stop()
	if f := klog.File(); f != "" {
		t.Fatalf("log file %q left open after Stop", f)
	}
}

func TestNode_AutoStartRunsToCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sim.AutoStart = true

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "ledger to fill", func() bool {
		return n.Coordinator().Status().Halted()
	})
	waitFor(t, "journal to catch up", func() bool {
		st, err := n.Journal().Stats()
		return err == nil && st.Blocks == cfg.Sim.Capacity
	})

	blocks := n.Coordinator().Snapshot()
	if len(blocks) != cfg.Sim.Capacity {
		t.Fatalf("ledger length = %d, want %d", len(blocks), cfg.Sim.Capacity)
	}
	var wins uint64
	for _, s := range n.Pool().Stats() {
		wins += s.Wins
	}
	if wins != uint64(cfg.Sim.Capacity) {
		t.Fatalf("total wins = %d, want %d", wins, cfg.Sim.Capacity)
	}
}

func TestNode_ParkedUntilStarted(t *testing.T) {
	cfg := testConfig(t)

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := n.Coordinator().Status(); got.State != round.StateStopped || got.Length != 0 {
		t.Fatalf("status = %+v, want stopped and empty", got)
	}
}

func TestNode_StartTwice(t *testing.T) {
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestNode_RPCDrivesSimulation(t *testing.T) {
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c := rpcclient.New("http://" + n.RPCAddr())
	if _, err := c.Start(); err != nil {
		t.Fatalf("sim_start: %v", err)
	}
	waitFor(t, "ledger to fill", func() bool {
		st, err := c.Status()
		return err == nil && st.Length == 4
	})

	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("ledger_getSnapshot: %v", err)
	}
	if !snap.Valid {
		t.Fatalf("snapshot invalid: %s", snap.Error)
	}

	waitFor(t, "journal to match the ledger", func() bool {
		jr, err := c.JournalBlocks()
		return err == nil && jr.InSync
	})
	jb, err := c.JournalBlock(3)
	if err != nil {
		t.Fatalf("journal_getBlock: %v", err)
	}
	if jb.Hash != snap.Blocks[3].Hash {
		t.Errorf("journaled hash %s, ledger hash %s", jb.Hash, snap.Blocks[3].Hash)
	}

	if err := c.Shutdown(); err != nil {
		t.Fatalf("sim_shutdown: %v", err)
	}
	select {
	case <-n.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("workers did not exit after sim_shutdown")
	}
	if n.Err() != nil {
		t.Fatalf("pool error: %v", n.Err())
	}
}

func TestNode_StopReleasesParkedWorkers(t *testing.T) {
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		n.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return")
	}
	select {
	case <-n.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	// Second Stop is a no-op.
	n.Stop()
}

func TestNode_OptionalComponentsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Journal.Enabled = false
	cfg.Events.Feed = 0

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()

	if n.RPCAddr() != "" {
		t.Errorf("RPCAddr = %q, want empty", n.RPCAddr())
	}
	if n.Journal() != nil {
		t.Error("journal should be nil")
	}
}

func TestNode_BadgerJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sim.AutoStart = true
	cfg.RPC.Enabled = false
	cfg.Journal.Backend = config.JournalBadger
	cfg.Journal.Path = filepath.Join(cfg.DataDir, "journal")

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "journal to catch up", func() bool {
		st, err := n.Journal().Stats()
		return err == nil && st.Blocks == cfg.Sim.Capacity
	})
	wins, err := n.Journal().Wins()
	if err != nil {
		t.Fatalf("Wins: %v", err)
	}
	var total uint64
	for _, w := range wins {
		total += w
	}
	if total != uint64(cfg.Sim.Capacity) {
		t.Fatalf("journal wins = %d, want %d", total, cfg.Sim.Capacity)
	}
}
