package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/yeganesereshgi/Demo-Experiment/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "devices":
		handleDevices(args)
	case "record":
		handleRecord(args)
	case "demo":
		handleDemo(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gazerec - gaze-tracking experiment controller

Usage: gazerec <command> [options]

Commands:
  devices    List serial ports that may carry a tracker
  record     Record a gaze session to a TSV file
  demo       Run guide, calibration, recording and looking time against
             a simulated tracker and a headless window
  migrate    Manage the session catalog schema (up, down, status)
  version    Show gazerec version
  help       Show this help message

Common Flags:
  --config <file>   Experiment configuration (JSON); defaults are built in
  --db <file>       Session catalog database

Run 'gazerec <command> -h' for command options.`)
}
