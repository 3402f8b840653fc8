package stress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/kolkov/queuedsync/locks"
)

// ErrInvalidReport is returned by ReadReport for input that is not a
// stress report.
var ErrInvalidReport = errors.New("invalid stress report")

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name           string        `json:"name"`
	Goroutines     int           `json:"goroutines"`
	Iterations     int           `json:"iterations"`
	Ops            int64         `json:"ops"`
	Timeouts       int64         `json:"timeouts"`
	Cancelled      int64         `json:"cancelled"`
	MaxQueueLength int           `json:"max_queue_length"`
	ViolationCount int64         `json:"violation_count"`
	Violations     []string      `json:"violations,omitempty"`
	Stalled        bool          `json:"stalled,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// Passed reports whether the scenario finished without violations.
func (r ScenarioResult) Passed() bool {
	return r.ViolationCount == 0 && !r.Stalled
}

// Throughput returns completed operations per second.
func (r ScenarioResult) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Duration.Seconds()
}

// Report is the outcome of a stress run together with the environment it
// ran in.
type Report struct {
	Version   string           `json:"version"`
	GoVersion string           `json:"go_version"`
	Platform  string           `json:"platform"`
	Parking   string           `json:"parking"`
	CPUs      int              `json:"cpus"`
	Results   []ScenarioResult `json:"results"`
}

// NewReport returns an empty report describing the current build and
// platform.
func NewReport() *Report {
	info := locks.GetInfo()
	return &Report{
		Version:   info.Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Parking:   info.Parking,
		CPUs:      runtime.NumCPU(),
	}
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Failed returns the names of the scenarios that did not pass.
func (r *Report) Failed() []string {
	var names []string
	for _, res := range r.Results {
		if !res.Passed() {
			names = append(names, res.Name)
		}
	}
	return names
}

// Format writes a human-readable report to w.
//
// Example output:
//
//	==================
//	STRESS REPORT queuedsync v0.1.0 (go1.24.0 linux/amd64, 8 CPUs, channel parking)
//
//	  mutex       PASS  ops=8000  1.2M ops/s  timeouts=31 cancelled=12 maxq=6  6.5ms
//	  stamped     FAIL  ops=7998  ...
//	      validated optimistic read saw x=3 y=-2
//
//	FAILED: stamped
//	==================
func (r *Report) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "STRESS REPORT queuedsync %s (%s %s, %d CPUs, %s parking)\n\n",
		r.Version, r.GoVersion, r.Platform, r.CPUs, r.Parking)

	for _, res := range r.Results {
		status := "PASS"
		switch {
		case res.Stalled:
			status = "STALL"
		case !res.Passed():
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %-10s  %-5s  ops=%-8d %s ops/s  timeouts=%d cancelled=%d maxq=%d  %v\n",
			res.Name, status, res.Ops, humanRate(res.Throughput()),
			res.Timeouts, res.Cancelled, res.MaxQueueLength, res.Duration.Round(time.Microsecond))
		for _, v := range res.Violations {
			fmt.Fprintf(w, "      %s\n", v)
		}
		if extra := res.ViolationCount - int64(len(res.Violations)); extra > 0 {
			fmt.Fprintf(w, "      (+%d more)\n", extra)
		}
	}

	fmt.Fprintln(w)
	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "FAILED: %s\n", strings.Join(failed, ", "))
	} else {
		fmt.Fprintf(w, "PASSED: %d scenarios\n", len(r.Results))
	}
	fmt.Fprintf(w, "==================\n")
}

// String returns the formatted report.
func (r *Report) String() string {
	var b strings.Builder
	r.Format(&b)
	return b.String()
}

func humanRate(v float64) string {
	switch {
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// WriteJSON writes the report to w as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadReport decodes a report written by WriteJSON.
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if !semver.IsValid(r.Version) {
		return nil, fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidReport, r.Version)
	}
	return &r, nil
}
