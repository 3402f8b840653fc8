package stress

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/mod/semver"

	"github.com/kolkov/queuedsync/locks"
)

// ErrIncompatible is returned by Compare for reports produced by
// incompatible versions.
var ErrIncompatible = errors.New("incompatible report versions")

// Delta is the throughput change of one scenario between two reports.
type Delta struct {
	Name    string
	Base    float64 // ops/s in the baseline, 0 if absent
	Current float64 // ops/s in the current report, 0 if absent
	Passed  bool    // current result passed
}

// Change returns the relative throughput change, e.g. -0.25 for a 25%
// slowdown. It is 0 when either side is missing.
func (d Delta) Change() float64 {
	if d.Base == 0 || d.Current == 0 {
		return 0
	}
	return (d.Current - d.Base) / d.Base
}

// Comparison is the result of Compare.
type Comparison struct {
	BaseVersion    string
	CurrentVersion string
	Deltas         []Delta
}

// Downgrade reports whether the baseline came from a newer version than
// the current report.
func (c *Comparison) Downgrade() bool {
	return semver.Compare(c.BaseVersion, c.CurrentVersion) > 0
}

// Compare matches scenarios by name and computes throughput deltas.
// Scenarios present in only one report get a zero on the other side.
// Reports whose versions are not compatible are rejected.
func Compare(base, current *Report) (*Comparison, error) {
	if !locks.Compatible(base.Version, current.Version) {
		return nil, fmt.Errorf("%w: baseline %s, current %s", ErrIncompatible, base.Version, current.Version)
	}

	cmp := &Comparison{BaseVersion: base.Version, CurrentVersion: current.Version}
	byName := make(map[string]ScenarioResult, len(base.Results))
	for _, res := range base.Results {
		byName[res.Name] = res
	}
	for _, res := range current.Results {
		d := Delta{Name: res.Name, Current: res.Throughput(), Passed: res.Passed()}
		if b, ok := byName[res.Name]; ok {
			d.Base = b.Throughput()
			delete(byName, res.Name)
		}
		cmp.Deltas = append(cmp.Deltas, d)
	}
	for _, res := range base.Results {
		if _, ok := byName[res.Name]; ok {
			cmp.Deltas = append(cmp.Deltas, Delta{Name: res.Name, Base: res.Throughput()})
		}
	}
	return cmp, nil
}

// Format writes the comparison as a table.
func (c *Comparison) Format(w io.Writer) {
	fmt.Fprintf(w, "baseline %s -> current %s\n", c.BaseVersion, c.CurrentVersion)
	if c.Downgrade() {
		fmt.Fprintf(w, "warning: baseline is newer than current\n")
	}
	for _, d := range c.Deltas {
		switch {
		case d.Base == 0:
			fmt.Fprintf(w, "  %-10s  new        %s ops/s\n", d.Name, humanRate(d.Current))
		case d.Current == 0:
			fmt.Fprintf(w, "  %-10s  missing    (was %s ops/s)\n", d.Name, humanRate(d.Base))
		default:
			mark := ""
			if !d.Passed {
				mark = "  FAIL"
			}
			fmt.Fprintf(w, "  %-10s  %+7.1f%%   %s -> %s ops/s%s\n",
				d.Name, d.Change()*100, humanRate(d.Base), humanRate(d.Current), mark)
		}
	}
}
