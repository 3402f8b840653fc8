// run.go implements the 'syncstress run' command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/kolkov/queuedsync/aqs"
	"github.com/kolkov/queuedsync/internal/stress"
)

// runConfig holds the parsed flags of the run command.
type runConfig struct {
	stress   stress.Config
	watchdog time.Duration
	jsonPath string
}

// parseRunArgs parses the run command's flags. Diagnostics go to out.
func parseRunArgs(args []string, out io.Writer) (*runConfig, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		cfg       runConfig
		scenarios string
		nospin    bool
	)
	fs.StringVar(&scenarios, "scenario", "", "comma-separated scenarios")
	fs.IntVar(&cfg.stress.Goroutines, "goroutines", stress.DefaultGoroutines, "workers per scenario")
	fs.IntVar(&cfg.stress.Iterations, "iterations", stress.DefaultIterations, "operations per worker")
	fs.DurationVar(&cfg.stress.Timeout, "timeout", stress.DefaultTimeout, "deadline per scenario")
	fs.DurationVar(&cfg.watchdog, "watchdog", 0, "report lock waits longer than this")
	fs.BoolVar(&nospin, "nospin", false, "park immediately instead of spinning")
	fs.BoolVar(&cfg.stress.ThreadParking, "futex", false, "park with futex(2), one OS thread per blocked worker (linux)")
	fs.StringVar(&cfg.jsonPath, "json", "", "write the report as JSON to this file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	for _, name := range strings.Split(scenarios, ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.stress.Scenarios = append(cfg.stress.Scenarios, name)
		}
	}
	if nospin {
		cfg.stress.Tuning = aqs.Tuning{Disabled: true}
	}
	if cfg.stress.Goroutines < 1 || cfg.stress.Iterations < 1 || cfg.stress.Timeout <= 0 {
		return nil, errors.New("-goroutines, -iterations and -timeout must be positive")
	}
	return &cfg, nil
}

// configureWatchdog sets up go-deadlock, which guards the harness's
// result collector. A zero timeout disables its wait detection.
func configureWatchdog(d time.Duration, w io.Writer) {
	deadlock.Opts.DeadlockTimeout = d
	deadlock.Opts.LogBuf = w
	deadlock.Opts.OnPotentialDeadlock = func() {
		fmt.Fprintln(w, "syncstress: watchdog fired; the run continues and the scenario will be reported as stalled")
	}
}

// runCommand implements the 'syncstress run' command and returns the exit
// code.
//
// Example:
//
//	syncstress run -scenario stamped -goroutines 32 -iterations 100000
func runCommand(args []string) int {
	cfg, err := parseRunArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	configureWatchdog(cfg.watchdog, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := stress.Run(ctx, cfg.stress)
	if err != nil && rep == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	rep.Format(os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Interrupted: %v\n", err)
	}

	if cfg.jsonPath != "" {
		if werr := writeReport(cfg.jsonPath, rep); werr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", werr)
			return 2
		}
	}
	if err != nil || !rep.Passed() {
		return 1
	}
	return 0
}

func writeReport(path string, rep *stress.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rep.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// listCommand prints the available scenarios.
func listCommand() {
	for _, sc := range stress.Scenarios() {
		fmt.Printf("%-10s  %s\n", sc.Name, sc.Description)
	}
}
