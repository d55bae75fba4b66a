package walk

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitAsync(coord *Coord) <-chan CompletionTally {
	done := make(chan CompletionTally, 1)
	go func() {
		done <- coord.Wait()
	}()
	return done
}

func deliver(t *testing.T, inbox Inbox, reports ...CompletionReport) {
	t.Helper()
	for _, report := range reports {
		if err := inbox.Deliver(context.Background(), report); err != nil {
			t.Fatalf("deliver %v: %v", report, err)
		}
	}
}

func TestCoordWithNoWalkersReturnsImmediately(t *testing.T) {
	var out bytes.Buffer
	coord := NewCoord(SimulationConfig{BoundaryMagnitude: 1, MaxSteps: 1, WalkerCount: 0}, &out)

	select {
	case tally := <-waitAsync(coord):
		if tally != (CompletionTally{Received: 0, Expected: 0}) {
			t.Errorf("tally = %+v, want zero", tally)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator blocked with zero expected walkers")
	}

	if got, want := out.String(), "Controller: All 0 walkers have finished..\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCoordCountsEveryWalkerExactlyOnce(t *testing.T) {
	for _, walkers := range []int{1, 2, 4, 16} {
		var out bytes.Buffer
		coord := NewCoord(SimulationConfig{BoundaryMagnitude: 3, MaxSteps: 10, WalkerCount: walkers}, &out)
		done := waitAsync(coord)

		for id := 1; id <= walkers; id++ {
			deliver(t, coord.Inbox(), CompletionReport{WalkerID: uint32(id), StepsTaken: id})
		}

		select {
		case tally := <-done:
			if tally.Received != walkers || tally.Expected != walkers {
				t.Errorf("W=%d: tally = %+v", walkers, tally)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("W=%d: coordinator never finished", walkers)
		}
		if n := strings.Count(out.String(), "have finished.."); n != 1 {
			t.Errorf("W=%d: controller line printed %d times", walkers, n)
		}
	}
}

func TestCoordWaitsForTheLastReport(t *testing.T) {
	var out bytes.Buffer
	coord := NewCoord(SimulationConfig{BoundaryMagnitude: 1, MaxSteps: 1, WalkerCount: 4}, &out)
	done := waitAsync(coord)

	deliver(t, coord.Inbox(),
		CompletionReport{WalkerID: 3, StepsTaken: 1},
		CompletionReport{WalkerID: 1, StepsTaken: 1},
		CompletionReport{WalkerID: 4, StepsTaken: 1},
	)

	select {
	case tally := <-done:
		t.Fatalf("coordinator finished early with %+v", tally)
	case <-time.After(100 * time.Millisecond):
	}
	if out.Len() != 0 {
		t.Fatalf("controller printed before all reports arrived: %q", out.String())
	}
	if status := coord.Status().Snapshot(); status.Received != 3 || status.Done {
		t.Errorf("status while waiting = %+v", status)
	}

	deliver(t, coord.Inbox(), CompletionReport{WalkerID: 2, StepsTaken: 1})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not finish after the fourth report")
	}
	if got, want := out.String(), "Controller: All 4 walkers have finished..\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCoordDeclarationIndependentOfArrivalOrder(t *testing.T) {
	orders := [][]uint32{
		{1, 2, 3, 4},
		{4, 3, 2, 1},
		{2, 4, 1, 3},
		{3, 1, 4, 2},
	}

	var outputs []string
	for _, order := range orders {
		var out bytes.Buffer
		coord := NewCoord(SimulationConfig{BoundaryMagnitude: 2, MaxSteps: 9, WalkerCount: 4}, &out)
		for _, id := range order {
			deliver(t, coord.Inbox(), CompletionReport{WalkerID: id, StepsTaken: int(id) * 2})
		}
		tally := coord.Wait()
		if tally.Received != 4 {
			t.Errorf("order %v: received %d", order, tally.Received)
		}
		outputs = append(outputs, out.String())
	}

	for i := 1; i < len(outputs); i++ {
		if outputs[i] != outputs[0] {
			t.Errorf("order %v printed %q, order %v printed %q", orders[i], outputs[i], orders[0], outputs[0])
		}
	}
}

func TestCoordConcurrentSendersAllCounted(t *testing.T) {
	const walkers = 64
	var out bytes.Buffer
	coord := NewCoord(SimulationConfig{BoundaryMagnitude: 1, MaxSteps: 1, WalkerCount: walkers}, &out)

	var wg sync.WaitGroup
	for id := 1; id <= walkers; id++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			_ = coord.Inbox().Deliver(context.Background(), CompletionReport{WalkerID: id, StepsTaken: 1})
		}(uint32(id))
	}

	tally := coord.Wait()
	wg.Wait()
	if tally.Received != walkers {
		t.Errorf("received %d, want %d", tally.Received, walkers)
	}
	if len(coord.Status().Walkers()) != walkers {
		t.Errorf("status lists %d walkers", len(coord.Status().Walkers()))
	}
	for _, w := range coord.Status().Walkers() {
		if !w.Reported {
			t.Errorf("walker %d not marked reported", w.WalkerID)
		}
	}
}

func TestCoordWaitTwicePrintsOnce(t *testing.T) {
	var out bytes.Buffer
	coord := NewCoord(SimulationConfig{BoundaryMagnitude: 1, MaxSteps: 1, WalkerCount: 1}, &out)
	deliver(t, coord.Inbox(), CompletionReport{WalkerID: 1, StepsTaken: 2})

	first := coord.Wait()
	second := coord.Wait()
	if first != second {
		t.Errorf("second Wait returned %+v, first %+v", second, first)
	}
	if n := strings.Count(out.String(), "Controller:"); n != 1 {
		t.Errorf("controller line printed %d times", n)
	}
	select {
	case <-coord.Finished():
	default:
		t.Error("Finished channel still open after Wait")
	}
}
