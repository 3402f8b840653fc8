package stress

import (
	"time"

	"github.com/kolkov/queuedsync/aqs"
)

// Config configures a stress run.
//
// Usage:
//
//	// Every scenario with defaults
//	cfg := stress.Config{}
//
//	// Two scenarios, heavier load, no spinning
//	cfg := stress.Config{
//	    Scenarios:  []string{"mutex", "stamped"},
//	    Goroutines: 32,
//	    Iterations: 10000,
//	    Tuning:     aqs.Tuning{Disabled: true},
//	}
type Config struct {
	// Scenarios selects scenarios by name. Empty runs all of them.
	Scenarios []string

	// Goroutines is the number of workers per scenario. Default: 8.
	// Values below 2 are raised to 2.
	Goroutines int

	// Iterations is the number of operations per worker. Default: 1000.
	Iterations int

	// Timeout bounds each scenario; a scenario still running after it is
	// reported as stalled. Default: 1 minute.
	Timeout time.Duration

	// Tuning is passed to every synchronizer under test. The zero value
	// selects the defaults.
	Tuning aqs.Tuning

	// ThreadParking makes every synchronizer under test park with futex(2)
	// on linux. Each blocked worker then holds an OS thread.
	ThreadParking bool
}

func (c Config) options() aqs.Options {
	return aqs.Options{Tuning: c.Tuning, ThreadParking: c.ThreadParking}
}

// Default configuration values.
const (
	DefaultGoroutines = 8
	DefaultIterations = 1000
	DefaultTimeout    = time.Minute
)

// Normalize fills unset fields with defaults.
func (c Config) Normalize() Config {
	if c.Goroutines <= 0 {
		c.Goroutines = DefaultGoroutines
	}
	c.Goroutines = max(c.Goroutines, 2)
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.Scenarios) == 0 {
		c.Scenarios = Names()
	}
	return c
}
