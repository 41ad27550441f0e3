package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("lodestoned version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "trim":
		runTrim(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "version":
		fmt.Printf("lodestoned version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: lodestoned <command> [options]

Commands:
  trim        Reclaim translog generations below the retention floor
  inspect     Report retention state for a shard's translog directory
  version     Print version information

Run 'lodestoned <command> --help' for more information on a command.`)
}
