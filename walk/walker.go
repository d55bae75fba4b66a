package walk

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
)

// Termination says which condition ended a walk.
type Termination int

const (
	OutOfBounds Termination = iota + 1
	BudgetExhausted
)

func (t Termination) String() string {
	switch t {
	case OutOfBounds:
		return "out-of-bounds"
	case BudgetExhausted:
		return "budget-exhausted"
	}
	return "unknown"
}

// WalkerState is owned by a single walker and never shared.
type WalkerState struct {
	ID         uint32
	Position   int
	StepsTaken int
}

type Walker struct {
	config SimulationConfig
	state  WalkerState
	rng    *rand.Rand
	inbox  Inbox
	out    io.Writer

	// called after every step, before the termination check
	onStep func(WalkerState)
}

// NewWalker creates a walker whose random stream is keyed by both the run
// seed and its own id, so walkers launched at the same instant still draw
// different sequences.
func NewWalker(
	id uint32, config SimulationConfig, seed uint64, inbox Inbox, out io.Writer,
) *Walker {
	return &Walker{
		config: config,
		state:  WalkerState{ID: id},
		rng:    rand.New(rand.NewPCG(seed, uint64(id))),
		inbox:  inbox,
		out:    out,
	}
}

func (w *Walker) State() WalkerState {
	return w.state
}

// Walk runs the random walk to one of its two termination conditions.
func (w *Walker) Walk() (CompletionReport, Termination) {
	bound := w.config.BoundaryMagnitude
	for w.state.StepsTaken < w.config.MaxSteps {
		if w.rng.IntN(2) == 0 {
			w.state.Position--
		} else {
			w.state.Position++
		}
		w.state.StepsTaken++

		if w.onStep != nil {
			w.onStep(w.state)
		}

		if w.state.Position < -bound || w.state.Position > bound {
			return w.report(), OutOfBounds
		}
	}
	return w.report(), BudgetExhausted
}

func (w *Walker) report() CompletionReport {
	return CompletionReport{
		WalkerID:   w.state.ID,
		StepsTaken: w.state.StepsTaken,
	}
}

// Start walks, prints the completion line and hands the report to the
// coordinator inbox. A delivery failure is returned to the caller; the walker
// never retries.
func (w *Walker) Start(ctx context.Context) error {
	report, reason := w.Walk()
	log.Printf(
		"Walker.Start: walker %d terminated (%v) at position %d after %d steps\n",
		report.WalkerID, reason, w.state.Position, report.StepsTaken,
	)

	if _, err := fmt.Fprintln(w.out, walkerFinishedLine(report.WalkerID, report.StepsTaken)); err != nil {
		log.Printf("Walker.Start: walker %d could not write output: %v\n", report.WalkerID, err)
	}

	if err := w.inbox.Deliver(ctx, report); err != nil {
		return fmt.Errorf("walker %d: deliver completion report: %w", report.WalkerID, err)
	}
	return nil
}
