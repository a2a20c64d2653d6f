package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/pooleja/ts-trader/internal/dex"
	"github.com/pooleja/ts-trader/internal/execution"
	"github.com/pooleja/ts-trader/internal/journal"
	"github.com/pooleja/ts-trader/internal/risk"
	"github.com/pooleja/ts-trader/internal/signal"
)

// State is a step of the run state machine.
type State int

const (
	Idle State = iota
	ReadingBalances
	ComputingSignal
	Deciding
	Sizing
	Quoting
	Executing
	Done
	Aborted
)

var stateNames = [...]string{
	Idle:            "idle",
	ReadingBalances: "reading_balances",
	ComputingSignal: "computing_signal",
	Deciding:        "deciding",
	Sizing:          "sizing",
	Quoting:         "quoting",
	Executing:       "executing",
	Done:            "done",
	Aborted:         "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ErrBalanceUnavailable reports a failed balance read; the run cannot decide without it.
var ErrBalanceUnavailable = errors.New("balance unavailable")

// LegError reports which leg failed and at which stage.
type LegError struct {
	Leg   string
	Stage State
	Err   error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("leg %s failed at stage %s: %v", e.Leg, e.Stage, e.Err)
}

func (e *LegError) Unwrap() error { return e.Err }

// LegResult is the outcome of one leg. Intent, Quote and Receipt are set as far as the leg got.
type LegResult struct {
	Leg     string
	Stage   State
	Outcome string
	Reason  string
	Intent  *risk.Intent
	Quote   *dex.Quote
	Receipt *execution.Receipt
	Err     error
}

// Failed reports whether the leg hit a core failure. Skipped and untriggered legs are not failures.
func (r LegResult) Failed() bool { return r.Outcome == journal.OutcomeFailed }

// Balances are the raw base-unit holdings read at the start of the run.
type Balances struct {
	Base  *big.Int
	Quote *big.Int
}

// Report summarizes a run for logging and the exit code.
type Report struct {
	RunID    string
	Signal   signal.PriceSignal
	Balances Balances
	Legs     []LegResult
	States   []State
	Final    State
	Err      error
}

// Failed is true when data was unavailable or any leg ended in a core failure.
func (r *Report) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, leg := range r.Legs {
		if leg.Failed() {
			return true
		}
	}
	return false
}

// Traded reports whether any leg was triggered by the decision step.
func (r *Report) Traded() bool {
	for _, leg := range r.Legs {
		if leg.Outcome != journal.OutcomeNoTrade {
			return true
		}
	}
	return false
}

// Leg returns the result for the named leg.
func (r *Report) Leg(name string) (LegResult, bool) {
	for _, leg := range r.Legs {
		if leg.Leg == name {
			return leg, true
		}
	}
	return LegResult{}, false
}
