// Package main implements the syncstress CLI tool.
//
// syncstress drives the queuedsync synchronizers with concurrent
// workloads and checks their safety properties while they run:
//
//  1. Mutual exclusion and reentrancy of ReentrantLock (fair and nonfair)
//  2. Permit bounds of Semaphore and release propagation of CountDownLatch
//  3. Write exclusion and optimistic validation of StampedLock
//  4. Signal delivery of condition variables in a bounded buffer
//
// Usage:
//
//	syncstress run                         # Every scenario, defaults
//	syncstress run -scenario mutex,stamped # Selected scenarios
//	syncstress run -json out.json          # Also write a JSON report
//	syncstress compare base.json out.json  # Throughput deltas
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/queuedsync/locks"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	case "list":
		listCommand()
	case "compare":
		os.Exit(compareCommand(os.Args[2:]))
	case "version", "--version", "-v":
		info := locks.GetInfo()
		fmt.Printf("syncstress version %s (%s, %s parking, -futex selects %s)\n",
			info.Version, info.Algorithm, info.Parking, info.ThreadParking)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`syncstress - stress tester for queuedsync synchronizers

USAGE:
    syncstress <command> [arguments]

COMMANDS:
    run        Run stress scenarios and report violations
    list       List available scenarios
    compare    Compare throughput of two JSON reports
    version    Show version information
    help       Show this help message

RUN FLAGS:
    -scenario list    Comma-separated scenarios (default: all)
    -goroutines n     Workers per scenario (default: 8)
    -iterations n     Operations per worker (default: 1000)
    -timeout d        Deadline per scenario (default: 1m)
    -watchdog d       Report lock waits longer than d (default: off)
    -nospin           Park immediately instead of spinning
    -futex            Park with futex(2) on linux; each blocked worker
                      holds an OS thread
    -json path        Write the report as JSON

EXAMPLES:
    # Heavy contention on the mutex scenarios
    syncstress run -scenario mutex,fair -goroutines 64

    # Record a baseline, then compare a later run against it
    syncstress run -json base.json
    syncstress run -json new.json
    syncstress compare base.json new.json

`)
}
