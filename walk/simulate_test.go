package walk

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var walkerLine = regexp.MustCompile(`^Rank (\d+): Walker finished in (\d+) steps\.$`)

func TestSimulateFourWalkers(t *testing.T) {
	var out bytes.Buffer
	config, err := NewSimulationConfig(3, 50, 5)
	if err != nil {
		t.Fatalf("NewSimulationConfig: %v", err)
	}

	tally, err := Simulate(context.Background(), config, testSeed, &out)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if tally != (CompletionTally{Received: 4, Expected: 4}) {
		t.Errorf("tally = %+v", tally)
	}

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d output lines, want 5:\n%s", len(lines), out.String())
	}
	if got, want := lines[4], "Controller: All 4 walkers have finished.."; got != want {
		t.Errorf("last line = %q, want %q", got, want)
	}

	seen := make(map[int]bool)
	for _, line := range lines[:4] {
		m := walkerLine.FindStringSubmatch(line)
		if m == nil {
			t.Fatalf("unexpected walker line %q", line)
		}
		rank, _ := strconv.Atoi(m[1])
		steps, _ := strconv.Atoi(m[2])
		if steps < 4 || steps > 50 {
			t.Errorf("rank %d finished in %d steps, want 4..50", rank, steps)
		}
		seen[rank] = true
	}
	if diff := cmp.Diff(map[int]bool{1: true, 2: true, 3: true, 4: true}, seen); diff != "" {
		t.Errorf("walker ranks mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulateSingleUnitHasNoWalkers(t *testing.T) {
	var out bytes.Buffer
	config, err := NewSimulationConfig(1, 1, 1)
	if err != nil {
		t.Fatalf("NewSimulationConfig: %v", err)
	}
	if _, err := Simulate(context.Background(), config, testSeed, &out); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got, want := out.String(), "Controller: All 0 walkers have finished..\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestSimulateCountsEveryReportWithCancelledContext(t *testing.T) {
	config, err := NewSimulationConfig(1000000, 5, 5)
	if err != nil {
		t.Fatalf("NewSimulationConfig: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for run := 0; run < 20; run++ {
		done := make(chan CompletionTally, 1)
		go func() {
			tally, err := Simulate(ctx, config, testSeed+uint64(run), &bytes.Buffer{})
			if err != nil {
				t.Errorf("run %d: Simulate: %v", run, err)
			}
			done <- tally
		}()

		select {
		case tally := <-done:
			if tally != (CompletionTally{Received: 4, Expected: 4}) {
				t.Errorf("run %d: tally = %+v", run, tally)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: Simulate with a cancelled context never returned", run)
		}
	}
}

func TestSimulationConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name                      string
		boundary, maxSteps, units int
	}{
		{"zero boundary", 0, 10, 2},
		{"negative boundary", -1, 10, 2},
		{"zero steps", 1, 0, 2},
		{"no units", 1, 1, 0},
	}
	for _, tc := range cases {
		if _, err := NewSimulationConfig(tc.boundary, tc.maxSteps, tc.units); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", tc.name, err)
		}
	}

	if _, err := Simulate(context.Background(), SimulationConfig{BoundaryMagnitude: 1, MaxSteps: 1, WalkerCount: -1}, testSeed, &bytes.Buffer{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Simulate with negative walker count: err = %v", err)
	}
}
