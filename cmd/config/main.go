package main

import (
	"fmt"
	"os"

	"randomwalk/util"
)

func printUsage() {
	fmt.Println("usage: ./bin/config sync [config-dir]")
	fmt.Println("example ./bin/config sync config")
}

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 || os.Args[1] != "sync" {
		printUsage()
		os.Exit(1)
	}

	dir := "config"
	if len(os.Args) == 3 {
		dir = os.Args[2]
	}

	synced, err := util.SynchronizeConfigs(dir)
	util.CheckErr(err, "Failed to synchronize config files: %v\n", err)
	for _, name := range synced {
		fmt.Printf("synced %v\n", name)
	}
}
