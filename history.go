package reliability

import (
	"math"

	"github.com/alexshd/reliability/optim"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ConvergenceAnalysis summarises a nearest-point search history.
type ConvergenceAnalysis struct {
	Iterations int
	Rate       float64 // Asymptotic ratio e_{k+1}/e_k of the absolute error
	Period     int     // 1 = settled, 2 = oscillating, -1 = none detected
	Last       optim.Iteration
}

// Oscillating reports a period-2 cycle of the iterates.
func (a ConvergenceAnalysis) Oscillating() bool { return a.Period == 2 }

// Superlinear reports an error ratio that is vanishing.
func (a ConvergenceAnalysis) Superlinear() bool { return a.Rate < 0.1 }

// HistoryConfig controls AnalyzeConvergence.
type HistoryConfig struct {
	Tail      int     // Trailing iterations examined
	Tolerance float64 // Distance under which two iterates are the same
	MaxPeriod int     // Longest cycle looked for
}

// DefaultHistoryConfig returns sensible defaults.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{Tail: 8, Tolerance: 1e-6, MaxPeriod: 4}
}

// AnalyzeConvergence estimates the linear rate of the absolute error and
// looks for cycles in the trailing iterates.
func AnalyzeConvergence(history []optim.Iteration, cfg HistoryConfig) ConvergenceAnalysis {
	a := ConvergenceAnalysis{Iterations: len(history), Period: -1, Rate: math.NaN()}
	if len(history) == 0 {
		return a
	}
	a.Last = history[len(history)-1]

	tail := history[max(0, len(history)-cfg.Tail):]
	var logs []float64
	for k := 1; k < len(tail); k++ {
		prev, cur := tail[k-1].AbsoluteError, tail[k].AbsoluteError
		if prev > 0 && cur > 0 {
			logs = append(logs, math.Log(cur/prev))
		}
	}
	if len(logs) > 0 {
		a.Rate = math.Exp(stat.Mean(logs, nil))
	}
	a.Period = detectPeriod(tail, cfg)
	return a
}

// detectPeriod tests periods 1, 2, 4, ... on the iterates.
func detectPeriod(tail []optim.Iteration, cfg HistoryConfig) int {
	for period := 1; period <= cfg.MaxPeriod; period *= 2 {
		if len(tail) < 2*period {
			return -1
		}
		periodic := true
		for i := 0; i+period < len(tail); i++ {
			if floats.Distance(tail[i].X, tail[i+period].X, 2) > cfg.Tolerance {
				periodic = false
				break
			}
		}
		if periodic {
			return period
		}
	}
	return -1
}
