// Package stress runs concurrency workloads against the synchronizers of
// this module and checks their safety properties while they run.
//
// Each scenario drives one synchronizer from many goroutines, mixing
// blocking, timed and cancellable acquisitions, and records every property
// violation it observes (two exclusive holders, more permit holders than
// permits, a torn optimistic read, a lost item). A scenario that does not
// finish within the configured timeout is reported as stalled, which is how
// a lost wakeup shows up.
//
// Results are collected into a Report that can be printed, written as JSON
// and compared against an earlier run.
//
// Example:
//
//	rep, err := stress.Run(ctx, stress.Config{Scenarios: []string{"mutex"}})
//	if err != nil {
//	    return err
//	}
//	rep.Format(os.Stdout)
package stress
