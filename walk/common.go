package walk

import (
	"errors"
	"fmt"
)

// ControllerRank is the execution unit index that plays the coordinator.
const ControllerRank = 0

var ErrInvalidConfig = errors.New("invalid simulation config")

// SimulationConfig is built once at startup and read by every walker and the
// coordinator. It is passed by value; nothing mutates it after Validate.
type SimulationConfig struct {
	BoundaryMagnitude int
	MaxSteps          int
	WalkerCount       int
}

// NewSimulationConfig derives the walker count from the total number of
// execution units, one of which is the coordinator.
func NewSimulationConfig(boundary, maxSteps, units int) (SimulationConfig, error) {
	cfg := SimulationConfig{
		BoundaryMagnitude: boundary,
		MaxSteps:          maxSteps,
		WalkerCount:       units - 1,
	}
	if units < 1 {
		return SimulationConfig{}, fmt.Errorf(
			"%w: need at least 1 execution unit, got %d", ErrInvalidConfig, units,
		)
	}
	return cfg, cfg.Validate()
}

func (c SimulationConfig) Validate() error {
	if c.BoundaryMagnitude <= 0 {
		return fmt.Errorf(
			"%w: boundary magnitude must be positive, got %d",
			ErrInvalidConfig, c.BoundaryMagnitude,
		)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf(
			"%w: max steps must be positive, got %d", ErrInvalidConfig, c.MaxSteps,
		)
	}
	if c.WalkerCount < 0 {
		return fmt.Errorf(
			"%w: walker count must not be negative, got %d",
			ErrInvalidConfig, c.WalkerCount,
		)
	}
	return nil
}

// CompletionReport is sent exactly once by each walker.
type CompletionReport struct {
	WalkerID   uint32
	StepsTaken int
}

// CompletionTally belongs to the coordinator's receive loop and nothing else.
type CompletionTally struct {
	Received int
	Expected int
}

func (t CompletionTally) Done() bool {
	return t.Received >= t.Expected
}

func walkerFinishedLine(id uint32, steps int) string {
	return fmt.Sprintf("Rank %d: Walker finished in %d steps.", id, steps)
}

func controllerFinishedLine(walkers int) string {
	return fmt.Sprintf("Controller: All %d walkers have finished..", walkers)
}
