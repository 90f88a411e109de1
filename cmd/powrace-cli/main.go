// powrace-cli is a command-line client for controlling a powraced daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Klingon-tech/powrace/internal/rpc"
	"github.com/Klingon-tech/powrace/internal/rpcclient"
)

const defaultRPC = "http://127.0.0.1:8645"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := defaultRPC
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "start":
		printStatus(must(client.Start()))
	case "stop":
		printStatus(must(client.Stop()))
	case "capacity":
		cmdCapacity(client, cmdArgs)
	case "difficulty":
		cmdDifficulty(client, cmdArgs)
	case "ledger":
		cmdLedger(client)
	case "block":
		cmdBlock(client, cmdArgs)
	case "stats":
		cmdStats(client)
	case "journal":
		cmdJournal(client, cmdArgs)
	case "events":
		cmdEvents(client, cmdArgs)
	case "watch":
		cmdWatch(client, cmdArgs)
	case "shutdown":
		if err := client.Shutdown(); err != nil {
			fatal("sim_shutdown: %v", err)
		}
		fmt.Println("Shutdown requested")
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: powrace-cli [global flags] <command> [args]

Global flags:
  --rpc <url>         RPC endpoint (default: %s)

Commands:
  status                          Show simulation status and worker stats
  start                           Start or resume mining
  stop                            Pause mining after the current attempts
  capacity <n>                    Set ledger capacity (1-100)
  difficulty <d>                  Set difficulty (1-8 trailing zero hex digits)
  ledger                          Show the committed ledger
  block <index>                   Show one block
  stats                           Show per-worker win counts
  journal [index|reset]           Audit the journal, show one journaled block, or clear it
  events [--since N] [--limit N]  Show recent events
  watch [--interval D]            Follow events until the daemon exits
  shutdown                        Stop the daemon
`, defaultRPC)
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	st := must(client.Status())
	printStatus(st)
	if len(st.Workers) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("%-8s %8s %8s %14s  %s\n", "WORKER", "ROUNDS", "WINS", "ATTEMPTS", "LAST HEAD")
	for _, w := range st.Workers {
		fmt.Printf("%-8d %8d %8d %14d  %s\n", w.WorkerID, w.Rounds, w.Wins, w.Attempts, w.LastHead)
	}
	if st.EventsDropped > 0 {
		fmt.Printf("\nEvents dropped: %d\n", st.EventsDropped)
	}
}

func printStatus(st *rpc.StatusResult) {
	state := st.State
	if st.Halted {
		state += " (ledger full)"
	}
	fmt.Printf("State:       %s\n", state)
	fmt.Printf("Round:       %d\n", st.Round)
	fmt.Printf("Blocks:      %d / %d\n", st.Length, st.Capacity)
	fmt.Printf("Difficulty:  %d\n", st.Difficulty)
	fmt.Printf("Head:        %s\n", st.Head)
	fmt.Printf("Wakeups:     %d\n", st.Transitions)
}

// ── capacity / difficulty ───────────────────────────────────────────────

func cmdCapacity(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: powrace-cli capacity <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fatal("invalid capacity %q", args[0])
	}
	st, err := client.SetCapacity(n)
	if err != nil {
		fatal("sim_setCapacity: %v", err)
	}
	printStatus(st)
}

func cmdDifficulty(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: powrace-cli difficulty <d>")
	}
	d, err := strconv.Atoi(args[0])
	if err != nil {
		fatal("invalid difficulty %q", args[0])
	}
	st, err := client.SetDifficulty(d)
	if err != nil {
		fatal("sim_setDifficulty: %v", err)
	}
	printStatus(st)
}

// ── ledger / block ──────────────────────────────────────────────────────

func cmdLedger(client *rpcclient.Client) {
	snap, err := client.Snapshot()
	if err != nil {
		fatal("ledger_getSnapshot: %v", err)
	}
	if len(snap.Blocks) == 0 {
		fmt.Println("Ledger is empty")
		return
	}

	fmt.Print(formatLedger(snap.Blocks, terminalWidth()))
	fmt.Println()
	fmt.Printf("Blocks:       %d\n", snap.Length)
	fmt.Printf("Head:         %s\n", snap.Head)
	fmt.Printf("Fingerprint:  %s\n", snap.Fingerprint)
	if snap.Valid {
		fmt.Println("Chain:        valid")
	} else {
		fmt.Printf("Chain:        INVALID (%s)\n", snap.Error)
	}
}

func cmdBlock(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: powrace-cli block <index>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		fatal("invalid index %q", args[0])
	}
	b, err := client.Block(i)
	if err != nil {
		fatal("ledger_getBlock: %v", err)
	}
	printBlock(b)
}

func printBlock(b *rpc.BlockResult) {
	fmt.Printf("Index:      %d\n", b.Index)
	fmt.Printf("Worker:     %d\n", b.WorkerID)
	fmt.Printf("Created:    %s\n", b.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("Payload:    %s\n", b.Payload)
	fmt.Printf("Nonce:      %d\n", b.Nonce)
	fmt.Printf("Prev:       %s\n", b.PrevHash)
	fmt.Printf("Hash:       %s\n", b.Hash)
	fmt.Printf("Digest:     %s\n", b.Digest)
}

// ── journal ─────────────────────────────────────────────────────────────

func cmdJournal(client *rpcclient.Client, args []string) {
	switch {
	case len(args) == 0:
		res, err := client.JournalBlocks()
		if err != nil {
			fatal("journal_getBlocks: %v", err)
		}
		if len(res.Blocks) > 0 {
			fmt.Print(formatLedger(res.Blocks, terminalWidth()))
			fmt.Println()
		}
		fmt.Print(formatAudit(res.Audit, res.InSync))
	case len(args) == 1 && args[0] == "reset":
		if _, err := client.ResetJournal(); err != nil {
			fatal("journal_reset: %v", err)
		}
		fmt.Println("Journal cleared")
	case len(args) == 1:
		i, err := strconv.Atoi(args[0])
		if err != nil {
			fatal("invalid index %q", args[0])
		}
		b, err := client.JournalBlock(i)
		if err != nil {
			fatal("journal_getBlock: %v", err)
		}
		printBlock(b)
	default:
		fatal("Usage: powrace-cli journal [index|reset]")
	}
}

// ── stats ───────────────────────────────────────────────────────────────

func cmdStats(client *rpcclient.Client) {
	st, err := client.Stats()
	if err != nil {
		fatal("ledger_getStats: %v", err)
	}
	fmt.Printf("Source:  %s\n", st.Source)
	fmt.Printf("Blocks:  %d\n", st.Blocks)
	if st.Errors > 0 {
		fmt.Printf("Errors:  %d\n", st.Errors)
	}
	if st.Gaps > 0 {
		fmt.Printf("Gaps:    %d\n", st.Gaps)
	}
	if len(st.Wins) == 0 {
		return
	}

	ids := make([]int, 0, len(st.Wins))
	for id := range st.Wins {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Println()
	fmt.Printf("%-8s %8s\n", "WORKER", "WINS")
	for _, id := range ids {
		fmt.Printf("%-8d %8d\n", id, st.Wins[id])
	}
}

// ── events / watch ──────────────────────────────────────────────────────

func cmdEvents(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	since := fs.Uint64("since", 0, "Only events after this sequence number")
	limit := fs.Int("limit", 0, "Maximum number of events (0 = all)")
	fs.Parse(args)

	res, err := client.Events(*since, *limit)
	if err != nil {
		fatal("events_recent: %v", err)
	}
	for _, e := range res.Events {
		fmt.Println(formatEvent(e))
	}
	fmt.Printf("Latest: %d\n", res.Latest)
}

func cmdWatch(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", 500*time.Millisecond, "Poll interval")
	fs.Parse(args)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var since uint64
	for {
		res, err := client.Events(since, 0)
		if err != nil {
			fatal("events_recent: %v", err)
		}
		for _, e := range res.Events {
			fmt.Println(formatEvent(e))
			if isExit(e) {
				return
			}
		}
		since = res.Latest

		select {
		case <-sigCh:
			return
		case <-ticker.C:
		}
	}
}

// ── helpers ─────────────────────────────────────────────────────────────

// terminalWidth returns the stdout width, or 0 when stdout is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

func must(st *rpc.StatusResult, err error) *rpc.StatusResult {
	if err != nil {
		fatal("%v", err)
	}
	return st
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
