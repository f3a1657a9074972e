// Package bench provides benchmarking primitives for the bench command.
package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and output size of a single encode run.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run, which includes the tokenizer load
	Duration time.Duration
	Tokens   int
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// WarmStats aggregates the runs that did not pay for the tokenizer load.
// With a single run the cold run is used.
func WarmStats(runs []RunResult) Stats {
	var warm, all []time.Duration
	for _, r := range runs {
		all = append(all, r.Duration)
		if !r.Cold {
			warm = append(warm, r.Duration)
		}
	}
	if len(warm) == 0 {
		return ComputeStats(all)
	}
	return ComputeStats(warm)
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// EncodeFunc is the operation under measurement.
type EncodeFunc func(text string) ([]uint32, error)

// Run encodes text n times. The first run is marked cold; callers pass a
// fresh encoder so it includes the one-time load.
func Run(encode EncodeFunc, text string, n int) ([]RunResult, error) {
	if n < 1 {
		return nil, errors.New("runs must be >= 1")
	}

	results := make([]RunResult, 0, n)
	for i := range n {
		start := time.Now()
		ids, err := encode(text)
		elapsed := time.Since(start)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		results = append(results, RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: elapsed,
			Tokens:   len(ids),
		})
	}
	return results, nil
}

// StartCPUProfile writes a CPU profile to path until the returned stop
// function is called. An empty path profiles nothing.
func StartCPUProfile(path string) (stop func() error, err error) {
	if path == "" {
		return func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpuprofile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start cpuprofile: %w", err)
	}
	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}

// ---------------------------------------------------------------------------
// Mean latency gate
// ---------------------------------------------------------------------------

// CheckMeanThreshold returns an error if mean exceeds maxMeanMS milliseconds.
// A threshold of 0 disables the gate.
func CheckMeanThreshold(mean time.Duration, maxMeanMS float64) error {
	if maxMeanMS <= 0 {
		return nil
	}
	if ms(mean) > maxMeanMS {
		return fmt.Errorf("mean encode time %.3fms exceeds threshold %.3fms", ms(mean), maxMeanMS)
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %12s  %8s\n", "Run", "Cold", "MS", "Tokens")
	fmt.Fprintln(sb, strings.Repeat("-", 36))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %12.3f  %8d\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			r.Tokens,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 36))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %8s  (min)\n", "", "", ms(stats.Min), "")
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %8s  (mean)\n", "", "", ms(stats.Mean), "")
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %8s  (max)\n", "", "", ms(stats.Max), "")

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Tokens     int     `json:"tokens"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  ms(stats.Min),
			MeanMS: ms(stats.Mean),
			MaxMS:  ms(stats.Max),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			Tokens:     r.Tokens,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
