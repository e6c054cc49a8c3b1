package reliability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/alexshd/reliability/optim"
	"golang.org/x/sync/errgroup"
)

// Study is one independent FORM analysis.
type Study struct {
	Name   string
	Event  Event
	Start  []float64    // Physical start point
	Solver optim.Solver // nil selects SQP
	Config Config
}

// BatchConfig controls RunBatch.
type BatchConfig struct {
	Workers  int               // Concurrent engines (0 = GOMAXPROCS)
	FailFast bool              // Cancel the remaining studies on the first failure
	Logger   *slog.Logger      // Passed to every engine
	Observe  func(BatchResult) // Called once per finished study, from its worker
}

// DefaultBatchConfig returns sensible defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{Workers: runtime.GOMAXPROCS(0)}
}

// BatchResult is the outcome of one study.
type BatchResult struct {
	Name     string
	State    State
	Result   *Result // nil unless State is StateConverged
	History  []optim.Iteration
	Err      error
	Duration time.Duration
}

// RunBatch runs every study on its own engine with at most cfg.Workers
// running at once. Results keep the order of studies. Study failures are
// reported per result; the returned error is the context error or, with
// FailFast, the first study error.
func RunBatch(ctx context.Context, studies []Study, cfg BatchConfig) ([]BatchResult, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	results := make([]BatchResult, len(studies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range studies {
		g.Go(func() error {
			r := runStudy(gctx, s, logger.With("study", s.Name))
			results[i] = r
			if cfg.Observe != nil {
				cfg.Observe(r)
			}
			if cfg.FailFast && r.Err != nil {
				return fmt.Errorf("study %q: %w", s.Name, r.Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func runStudy(ctx context.Context, s Study, logger *slog.Logger) BatchResult {
	r := BatchResult{Name: s.Name, State: StateFailed}
	start := time.Now()

	if err := ctx.Err(); err != nil {
		r.Err = err
		r.Duration = time.Since(start)
		return r
	}
	form, err := NewFORM(s.Solver, s.Config, s.Event, s.Start)
	if err != nil {
		r.Err = err
		r.Duration = time.Since(start)
		return r
	}
	form.WithLogger(logger)
	r.Err = form.Run(ctx)
	r.State = form.State()
	r.History = form.History()
	if r.Err == nil {
		r.Result, r.Err = form.Result()
	}
	r.Duration = time.Since(start)
	return r
}

// SweepThreshold returns one study per threshold, named "<base>/t=<value>".
func SweepThreshold(base Study, thresholds []float64) []Study {
	out := make([]Study, len(thresholds))
	for i, t := range thresholds {
		s := base
		s.Name = fmt.Sprintf("%s/t=%g", base.Name, t)
		s.Event.Threshold = t
		s.Start = append([]float64(nil), base.Start...)
		out[i] = s
	}
	return out
}

// Statistics summarises the wall time and outcomes of a batch.
type Statistics struct {
	Converged int
	Failed    int
	Mean      time.Duration
	Stddev    time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
}

// CalculateStatistics computes percentile durations over all studies.
func CalculateStatistics(results []BatchResult) Statistics {
	var s Statistics
	if len(results) == 0 {
		return s
	}
	sorted := make([]time.Duration, 0, len(results))
	for _, r := range results {
		if r.State == StateConverged {
			s.Converged++
		} else {
			s.Failed++
		}
		sorted = append(sorted, r.Duration)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	s.Mean = sum / time.Duration(len(sorted))

	var variance float64
	for _, d := range sorted {
		diff := float64(d - s.Mean)
		variance += diff * diff
	}
	s.Stddev = time.Duration(math.Sqrt(variance / float64(len(sorted))))

	s.P50 = sorted[len(sorted)*50/100]
	s.P95 = sorted[len(sorted)*95/100]
	s.P99 = sorted[len(sorted)*99/100]
	return s
}
