package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Sim.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Sim.Workers)
	}
	if cfg.Sim.Capacity != 20 || cfg.Sim.Difficulty != 4 {
		t.Errorf("capacity/difficulty = %d/%d, want 20/4", cfg.Sim.Capacity, cfg.Sim.Difficulty)
	}
	if cfg.Sim.PaceDelay() != 10*time.Millisecond {
		t.Errorf("pace delay = %v, want 10ms", cfg.Sim.PaceDelay())
	}
	if cfg.RPC.ListenAddr() != "127.0.0.1:8645" {
		t.Errorf("listen addr = %q", cfg.RPC.ListenAddr())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"workers zero", func(c *Config) { c.Sim.Workers = 0 }, "sim.workers"},
		{"workers too many", func(c *Config) { c.Sim.Workers = MaxWorkers + 1 }, "sim.workers"},
		{"capacity zero", func(c *Config) { c.Sim.Capacity = 0 }, "sim.capacity"},
		{"capacity 101", func(c *Config) { c.Sim.Capacity = 101 }, "sim.capacity"},
		{"difficulty zero", func(c *Config) { c.Sim.Difficulty = 0 }, "sim.difficulty"},
		{"difficulty 9", func(c *Config) { c.Sim.Difficulty = 9 }, "sim.difficulty"},
		{"negative pace", func(c *Config) { c.Sim.PaceEvery = -1 }, "sim.pace_every"},
		{"negative delay", func(c *Config) { c.Sim.PaceDelayMS = -1 }, "sim.pace_delay_ms"},
		{"check every zero", func(c *Config) { c.Sim.CheckEvery = 0 }, "sim.check_every"},
		{"bus buffer zero", func(c *Config) { c.Events.Buffer = 0 }, "events.buffer"},
		{"rpc port", func(c *Config) { c.RPC.Port = 70000 }, "rpc.port"},
		{"journal backend", func(c *Config) { c.Journal.Backend = "bolt" }, "journal.backend"},
		{"memory with path", func(c *Config) { c.Journal.Path = "/tmp/j" }, "journal.path"},
		{"bounds ok", func(c *Config) { c.Sim.Workers = 64; c.Sim.Capacity = 100; c.Sim.Difficulty = 8 }, ""},
		{"pacing disabled", func(c *Config) { c.Sim.PaceEvery = 0 }, ""},
		{"badger with path", func(c *Config) { c.Journal.Backend = JournalBadger; c.Journal.Path = "/tmp/j" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_EmptyBackendDefaultsToMemory(t *testing.T) {
	cfg := Default()
	cfg.Journal.Backend = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Journal.Backend != JournalMemory {
		t.Fatalf("backend = %q, want %q", cfg.Journal.Backend, JournalMemory)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powrace.conf")
	content := `# comment
sim.workers = 5

sim.capacity = "40"
rpc.allowed = 127.0.0.1, 10.0.0.1
log.level = 'debug'
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if values["sim.workers"] != "5" {
		t.Errorf("sim.workers = %q", values["sim.workers"])
	}
	if values["sim.capacity"] != "40" {
		t.Errorf("quotes not stripped: %q", values["sim.capacity"])
	}
	if values["log.level"] != "debug" {
		t.Errorf("single quotes not stripped: %q", values["log.level"])
	}

	cfg := Default()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Sim.Workers != 5 || cfg.Sim.Capacity != 40 {
		t.Errorf("sim = %+v", cfg.Sim)
	}
	if len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.AllowedIPs[1] != "10.0.0.1" {
		t.Errorf("allowed = %v", cfg.RPC.AllowedIPs)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("values = %v, want empty", values)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("sim.workers 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("error = %v, want line 1 format error", err)
	}
}

func TestApplyFileConfig_BadInt(t *testing.T) {
	cfg := Default()
	err := ApplyFileConfig(cfg, map[string]string{"sim.difficulty": "hard"})
	if err == nil || !strings.Contains(err.Error(), "sim.difficulty") {
		t.Fatalf("error = %v, want key in message", err)
	}
}

func TestApplyFileConfig_UnknownKeyIgnored(t *testing.T) {
	cfg := Default()
	if err := ApplyFileConfig(cfg, map[string]string{"p2p.port": "30303"}); err != nil {
		t.Fatalf("unknown key: %v", err)
	}
}

func TestWriteDefaultConfig_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powrace.conf")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := Default()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	want := Default()
	if cfg.Sim != want.Sim || cfg.Events != want.Events || cfg.Journal != want.Journal || cfg.Log != want.Log {
		t.Fatalf("default file changed settings:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"--workers=8", "--capacity", "50", "--pace-every=0", "--rpc=false", "--log-json"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if f.Workers != 8 || f.Capacity != 50 {
		t.Errorf("workers/capacity = %d/%d", f.Workers, f.Capacity)
	}
	if !f.SetPaceEvery || f.PaceEvery != 0 {
		t.Errorf("pace-every not tracked as set")
	}
	if !f.SetRPC || f.RPC {
		t.Errorf("rpc = %v (set %v), want explicit false", f.RPC, f.SetRPC)
	}
	if f.SetAutoStart {
		t.Errorf("autostart reported set")
	}

	cfg := Default()
	ApplyFlags(cfg, f)
	if cfg.Sim.Workers != 8 || cfg.Sim.Capacity != 50 || cfg.Sim.PaceEvery != 0 {
		t.Errorf("sim = %+v", cfg.Sim)
	}
	if cfg.RPC.Enabled {
		t.Errorf("rpc still enabled")
	}
	if !cfg.Log.JSON {
		t.Errorf("log.json not applied")
	}
	// Untouched settings keep their defaults.
	if cfg.Sim.Difficulty != Default().Sim.Difficulty {
		t.Errorf("difficulty = %d", cfg.Sim.Difficulty)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--p2p-port=1"}},
		{"bad int", []string{"--workers=many"}},
		{"flag after positional", []string{"extra", "--workers=2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFlags(tt.args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "custom.conf")
	content := "sim.workers = 6\nsim.capacity = 30\njournal.backend = badger\n"
	if err := os.WriteFile(conf, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, flags, err := Load([]string{"--datadir", dir, "-c", conf, "--capacity=12"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if flags.Config != conf {
		t.Errorf("config flag = %q", flags.Config)
	}
	if cfg.Sim.Workers != 6 {
		t.Errorf("workers = %d, want file value 6", cfg.Sim.Workers)
	}
	if cfg.Sim.Capacity != 12 {
		t.Errorf("capacity = %d, want flag value 12", cfg.Sim.Capacity)
	}
	if cfg.Sim.Difficulty != 4 {
		t.Errorf("difficulty = %d, want default 4", cfg.Sim.Difficulty)
	}
	if cfg.Journal.Backend != JournalBadger {
		t.Errorf("backend = %q", cfg.Journal.Backend)
	}
	if _, err := os.Stat(filepath.Join(dir, "powrace.conf")); err != nil {
		t.Errorf("default config not written: %v", err)
	}
	if _, err := os.Stat(cfg.LogsDir()); err != nil {
		t.Errorf("logs dir not created: %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, _, err := Load([]string{"--datadir", t.TempDir(), "--difficulty=9"})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("error = %v, want invalid config", err)
	}
}

func TestLoad_HelpAndVersion(t *testing.T) {
	for _, arg := range []string{"-h", "--help", "-v", "--version"} {
		cfg, flags, err := Load([]string{arg})
		if err != nil {
			t.Fatalf("%s: %v", arg, err)
		}
		if cfg != nil {
			t.Errorf("%s: config loaded", arg)
		}
		if !flags.Help && !flags.Version {
			t.Errorf("%s: neither help nor version set", arg)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var sb strings.Builder
	PrintUsage(&sb)
	for _, want := range []string{"--workers", "--capacity", "--difficulty", "--journal-backend"} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("usage missing %s", want)
		}
	}
}
