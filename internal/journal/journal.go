// Package journal records what each run decided and submitted, one entry per leg.
package journal

import (
	"sync"
	"time"
)

// Outcomes written to Entry.Outcome.
const (
	OutcomeSkipped   = "skipped"
	OutcomeNoTrade   = "no_trade"
	OutcomeSubmitted = "submitted"
	OutcomeDryRun    = "dry_run"
	OutcomeFailed    = "failed"
)

// Entry is the audit record for one leg of one run. Amounts are base-unit integers.
type Entry struct {
	RunID       string    `json:"run_id"`
	Leg         string    `json:"leg"`
	Stage       string    `json:"stage"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Route       string    `json:"route,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	AmountIn    string    `json:"amount_in,omitempty"`
	ExpectedOut string    `json:"expected_out,omitempty"`
	MinimumOut  string    `json:"minimum_out,omitempty"`
	Deadline    int64     `json:"deadline,omitempty"`
	Error       string    `json:"error,omitempty"`
	DryRun      bool      `json:"dry_run,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// Recorder captures journal entries.
type Recorder interface {
	Record(Entry)
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) {}

// Multi fans each entry out to every recorder in order.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []Recorder

func (m multi) Record(e Entry) {
	for _, r := range m {
		r.Record(e)
	}
}

// Ledger keeps entries in memory for inspection after a run.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{entries: make([]Entry, 0, capacity)}
}

// Record appends an entry.
func (l *Ledger) Record(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded entries.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByLeg returns the entries recorded for leg.
func (l *Ledger) ByLeg(leg string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Leg == leg {
			out = append(out, e)
		}
	}
	return out
}
