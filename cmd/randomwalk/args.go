package main

import (
	"fmt"
	"strconv"
	"time"

	"randomwalk/util"
	"randomwalk/walk"

	"github.com/spf13/cobra"
)

// simulationFlags are shared by every subcommand that needs a
// SimulationConfig.
type simulationFlags struct {
	units int
	seed  uint64
}

func (f *simulationFlags) register(cmd *cobra.Command, defaultUnits int) {
	cmd.Flags().IntVarP(&f.units, "units", "n", defaultUnits, "Total execution units, coordinator included")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Run seed for the walkers' random streams (0 = time based)")
}

func (f *simulationFlags) runSeed() uint64 {
	if f.seed != 0 {
		return f.seed
	}
	return uint64(time.Now().UnixNano())
}

// usageError carries the usage line for the coordinator to print.
type usageError struct {
	reason string
	usage  string
}

func newUsageError(cmd *cobra.Command, reason string) error {
	return &usageError{
		reason: reason,
		usage:  fmt.Sprintf("Usage: %s <domain_size> <max_steps>", cmd.CommandPath()),
	}
}

func (e *usageError) Error() string {
	if e.reason == "" {
		return e.usage
	}
	return e.reason + "\n" + e.usage
}

func (e *usageError) Unwrap() error {
	return util.ErrUsage
}

// parseSimulationArgs turns the two positional arguments and the unit count
// into a validated config.
func parseSimulationArgs(cmd *cobra.Command, args []string, units int) (walk.SimulationConfig, error) {
	if len(args) != 2 {
		return walk.SimulationConfig{}, newUsageError(cmd, "")
	}
	boundary, err := strconv.Atoi(args[0])
	if err != nil {
		return walk.SimulationConfig{}, newUsageError(cmd, fmt.Sprintf("domain_size %q is not an integer", args[0]))
	}
	maxSteps, err := strconv.Atoi(args[1])
	if err != nil {
		return walk.SimulationConfig{}, newUsageError(cmd, fmt.Sprintf("max_steps %q is not an integer", args[1]))
	}
	config, err := walk.NewSimulationConfig(boundary, maxSteps, units)
	if err != nil {
		return walk.SimulationConfig{}, newUsageError(cmd, err.Error())
	}
	return config, nil
}
