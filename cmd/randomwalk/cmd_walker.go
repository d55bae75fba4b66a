package main

import (
	"errors"
	"fmt"

	"randomwalk/util"
	"randomwalk/walk"

	"github.com/spf13/cobra"
)

var walkerFlags struct {
	simulationFlags
	configPath string
	rank       uint32
	coord      string
	ack        string
}

var walkerCmd = &cobra.Command{
	Use:   "walker <domain_size> <max_steps>",
	Short: "Run one walker process and report to the coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := parseSimulationArgs(cmd, args, walkerFlags.units)
		if errors.Is(err, util.ErrUsage) {
			// only the coordinator prints usage
			return errSilentExit
		}
		if err != nil {
			return err
		}

		var walkerConfig walk.WalkerConfig
		if walkerFlags.configPath != "" {
			if err := util.ReadConfig(walkerFlags.configPath, &walkerConfig); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("rank") || walkerConfig.WalkerId == 0 {
			walkerConfig.WalkerId = walkerFlags.rank
		}
		if cmd.Flags().Changed("coord") || walkerConfig.CoordAddr == "" {
			walkerConfig.CoordAddr = walkerFlags.coord
		}
		if cmd.Flags().Changed("ack") {
			walkerConfig.FCheckAckLocalAddress = walkerFlags.ack
		}

		logCloser, err := util.SetupLog(fmt.Sprintf("Walker %d ", walkerConfig.WalkerId), walkerConfig.LogFile)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		return walk.RunRemoteWalker(
			cmd.Context(), walkerConfig, config, walkerFlags.runSeed(), cmd.OutOrStdout(),
		)
	},
}

func init() {
	walkerFlags.register(walkerCmd, 2)
	walkerCmd.Flags().StringVarP(&walkerFlags.configPath, "config", "c", "", "Walker config file (JSON or YAML)")
	walkerCmd.Flags().Uint32VarP(&walkerFlags.rank, "rank", "r", 1, "This walker's rank (1..units-1)")
	walkerCmd.Flags().StringVar(&walkerFlags.coord, "coord", "127.0.0.1:43400", "Coordinator walker API address")
	walkerCmd.Flags().StringVar(&walkerFlags.ack, "ack", "", "Local UDP address to answer heartbeats on (empty disables)")
}
