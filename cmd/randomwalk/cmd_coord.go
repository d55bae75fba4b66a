package main

import (
	"log"

	"randomwalk/util"
	"randomwalk/walk"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var coordFlags struct {
	simulationFlags
	configPath string
	listen     string
	status     string
	lostMsgs   uint8
}

var coordCmd = &cobra.Command{
	Use:   "coord <domain_size> <max_steps>",
	Short: "Run the coordinator (rank 0) and wait for every walker process",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := parseSimulationArgs(cmd, args, coordFlags.units)
		if err != nil {
			return err
		}

		var coordConfig walk.CoordConfig
		if coordFlags.configPath != "" {
			if err := util.ReadConfig(coordFlags.configPath, &coordConfig); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("listen") || coordConfig.WalkerAPIListenAddr == "" {
			coordConfig.WalkerAPIListenAddr = coordFlags.listen
		}
		if cmd.Flags().Changed("status") {
			coordConfig.StatusAPIListenAddr = coordFlags.status
		}
		if cmd.Flags().Changed("lost-msgs") {
			coordConfig.LostMsgsThresh = coordFlags.lostMsgs
		}

		logCloser, err := util.SetupLog("Coord ", coordConfig.LogFile)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		coord := walk.NewCoord(config, cmd.OutOrStdout())
		tally, err := walk.NewCoordServer(coord, coordConfig).ListenAndServe()
		if err != nil {
			return err
		}
		log.Printf("coord: done, %d/%d reports received\n", tally.Received, tally.Expected)
		return nil
	},
}

func init() {
	// keep stdout for the controller line
	gin.SetMode(gin.ReleaseMode)

	coordFlags.register(coordCmd, 1)
	coordCmd.Flags().StringVarP(&coordFlags.configPath, "config", "c", "", "Coordinator config file (JSON or YAML)")
	coordCmd.Flags().StringVar(&coordFlags.listen, "listen", ":43400", "Walker API listen address")
	coordCmd.Flags().StringVar(&coordFlags.status, "status", "", "Status API listen address (empty disables)")
	coordCmd.Flags().Uint8Var(&coordFlags.lostMsgs, "lost-msgs", 0, "Heartbeats lost before a walker is suspected (0 disables)")
}
