package main

import (
	"randomwalk/util"
	"randomwalk/walk"

	"github.com/spf13/cobra"
)

var runFlags struct {
	simulationFlags
	logFile string
}

var runCmd = &cobra.Command{
	Use:   "run <domain_size> <max_steps>",
	Short: "Run the coordinator and all walkers in this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := parseSimulationArgs(cmd, args, runFlags.units)
		if err != nil {
			return err
		}

		logCloser, err := util.SetupLog("Coord ", runFlags.logFile)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		_, err = walk.Simulate(cmd.Context(), config, runFlags.runSeed(), cmd.OutOrStdout())
		return err
	},
}

func init() {
	runFlags.register(runCmd, 4)
	runCmd.Flags().StringVar(&runFlags.logFile, "log-file", "", "Also append logs to this file")
}
