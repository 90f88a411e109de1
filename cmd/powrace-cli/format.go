package main

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/powrace/internal/events"
	"github.com/Klingon-tech/powrace/internal/journal"
	"github.com/Klingon-tech/powrace/internal/rpc"
)

// Fixed columns of the ledger table: index, worker, nonce, created.
const ledgerFixedWidth = 6 + 1 + 6 + 1 + 12 + 1 + 8 + 1

// formatLedger renders blocks as a table. When width is positive the payload
// and hash columns are shortened to fit.
func formatLedger(blocks []rpc.BlockResult, width int) string {
	payloadW, hashW := 16, 16
	if width > 0 {
		room := width - ledgerFixedWidth - 4
		if room < 16 {
			room = 16
		}
		payloadW = room / 2
		hashW = room - payloadW
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-6s %-6s %12s %-8s  %-*s %-*s\n",
		"INDEX", "WORKER", "NONCE", "CREATED", payloadW, "PAYLOAD", hashW, "PREV")
	for _, b := range blocks {
		fmt.Fprintf(&sb, "%-6d %-6d %12d %-8s  %-*s %-*s\n",
			b.Index, b.WorkerID, b.Nonce, b.CreatedAt.Format("15:04:05"),
			payloadW, truncate(b.Payload, payloadW),
			hashW, truncate(b.PrevHash, hashW))
	}
	return sb.String()
}

// formatAudit summarizes a journal audit. Index lists are shown as given.
func formatAudit(a journal.Audit, inSync bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Journaled:   %d\n", a.Journaled)
	fmt.Fprintf(&sb, "Ledger:      %d\n", a.Ledger)
	if inSync {
		sb.WriteString("Audit:       in sync\n")
		return sb.String()
	}
	sb.WriteString("Audit:       OUT OF SYNC\n")
	for _, row := range []struct {
		label string
		idx   []int
	}{
		{"Missing", a.Missing},
		{"Mismatched", a.Mismatched},
		{"Extra", a.Extra},
	} {
		if len(row.idx) > 0 {
			fmt.Fprintf(&sb, "%-12s %v\n", row.label+":", row.idx)
		}
	}
	return sb.String()
}

// formatEvent renders one event as a single log-style line.
func formatEvent(e events.Event) string {
	prefix := fmt.Sprintf("#%-6d %s", e.Seq, e.Time.Format("15:04:05.000"))
	switch e.Kind {
	case events.KindWorkerSearching:
		return fmt.Sprintf("%s worker %d searching round %d", prefix, e.WorkerID, e.Round)
	case events.KindWorkerSolved:
		return fmt.Sprintf("%s worker %d solved round %d with nonce %d", prefix, e.WorkerID, e.Round, e.Nonce)
	case events.KindLedgerAppended:
		if e.Block == nil {
			return fmt.Sprintf("%s block appended", prefix)
		}
		return fmt.Sprintf("%s block %d appended by worker %d (prev %s)",
			prefix, e.Block.Index, e.Block.WorkerID, e.Block.PrevHash)
	case events.KindSimStarted:
		return fmt.Sprintf("%s simulation started at round %d", prefix, e.Round)
	case events.KindSimStopped:
		return fmt.Sprintf("%s simulation stopped at round %d", prefix, e.Round)
	case events.KindSimExiting:
		return fmt.Sprintf("%s simulation exiting", prefix)
	case events.KindCapacityChanged:
		return fmt.Sprintf("%s max blocks set to %d", prefix, e.Capacity)
	case events.KindDifficultyChanged:
		return fmt.Sprintf("%s difficulty set to %d", prefix, e.Difficulty)
	default:
		return fmt.Sprintf("%s %s", prefix, e.Kind)
	}
}

func isExit(e events.Event) bool {
	return e.Kind == events.KindSimExiting
}

// truncate shortens s to at most n runes, marking the cut with "~".
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "~"
	}
	return string(r[:n-1]) + "~"
}
