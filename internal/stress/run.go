package stress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kolkov/queuedsync/internal/park"
)

// stallGrace is how long workers may keep running after a scenario's
// timeout before the scenario is reported as stalled. Waits that cannot
// be cancelled need this long to drain.
var stallGrace = 5 * time.Second

// Run executes the configured scenarios in order.
//
// A scenario whose workers do not return within Config.Timeout plus a
// grace period is marked stalled and its workers are abandoned. Run
// returns the partial report and ctx.Err() if ctx ends between
// scenarios.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg = cfg.Normalize()

	selected := make([]Scenario, 0, len(cfg.Scenarios))
	for _, name := range cfg.Scenarios {
		sc, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
		}
		selected = append(selected, sc)
	}

	rep := NewReport()
	if cfg.ThreadParking {
		rep.Parking = park.Futex.Effective().String()
	}
	for _, sc := range selected {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Results = append(rep.Results, runScenario(ctx, sc, cfg))
	}
	return rep, nil
}

func runScenario(ctx context.Context, sc Scenario, cfg Config) ScenarioResult {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	col := NewCollector()
	r := sc.newRound(cfg, col)

	start := time.Now()
	var wg sync.WaitGroup
	for id := range cfg.Goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx, id)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	stalled := false
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(stallGrace):
			stalled = true
		}
	}
	elapsed := time.Since(start)

	if stalled {
		col.Violation("workers still blocked %v after the scenario deadline", stallGrace)
	} else {
		r.finish()
	}
	res := col.Result(sc.Name, cfg, elapsed)
	res.Stalled = stalled
	return res
}
