package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// errSilentExit makes main exit non-zero without printing anything.
var errSilentExit = errors.New("silent exit")

var rootCmd = &cobra.Command{
	Use:   "randomwalk",
	Short: "Concurrent 1-D random walkers with a completion coordinator",
	Long: "randomwalk runs N-1 independent bounded random walks and one coordinator\n" +
		"that waits for a completion report from every walker.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(coordCmd)
	rootCmd.AddCommand(walkerCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilentExit) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
