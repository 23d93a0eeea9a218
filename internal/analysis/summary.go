package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"mppt-sim/internal/backtest"
	"mppt-sim/internal/model"
)

// RunSummary condenses a run's ledger into numbers that can be compared
// across strategies.
type RunSummary struct {
	Strategy string
	Cycles   int

	Efficiency      float64
	EnergyTracked   float64
	EnergyAvailable float64
	// OffPeakFraction is the share of cycles with PDiff above the threshold.
	OffPeakFraction float64

	MeanPDiff float64
	P50PDiff  float64
	P95PDiff  float64
	MaxPDiff  float64

	// MeanAbsVError is the mean |V - VMPP| over the run.
	MeanAbsVError float64
	// SettleCycle is the first cycle after which PDiff stays at or under the
	// threshold, or -1 if the run never settles.
	SettleCycle int
	// Reversals counts direction changes between UP and DOWN.
	Reversals int
}

func Summarize(res *backtest.Result, threshold float64) RunSummary {
	s := RunSummary{SettleCycle: -1}
	if res == nil || len(res.Ledger) == 0 {
		return s
	}
	if threshold <= 0 {
		threshold = backtest.DefaultDiffThreshold
	}
	s.Strategy = res.Strategy
	s.Cycles = len(res.Ledger)
	s.Efficiency = res.Efficiency
	s.EnergyTracked = res.EnergyTracked
	s.EnergyAvailable = res.EnergyAvailable
	s.OffPeakFraction = res.PDiffA

	diffs := make([]float64, 0, len(res.Ledger))
	verr := make([]float64, 0, len(res.Ledger))
	var lastMove model.Direction
	settle := 0
	for i, r := range res.Ledger {
		diffs = append(diffs, r.PDiff)
		verr = append(verr, math.Abs(r.V-r.VMPP))
		if r.PDiff > threshold {
			settle = i + 1
		}
		if r.Direction != model.DirectionHold {
			if lastMove != "" && r.Direction != lastMove {
				s.Reversals++
			}
			lastMove = r.Direction
		}
	}
	if settle < len(res.Ledger) {
		s.SettleCycle = settle
	}

	s.MeanPDiff = stat.Mean(diffs, nil)
	s.MeanAbsVError = stat.Mean(verr, nil)
	sort.Float64s(diffs)
	s.P50PDiff = stat.Quantile(0.5, stat.Empirical, diffs, nil)
	s.P95PDiff = stat.Quantile(0.95, stat.Empirical, diffs, nil)
	s.MaxPDiff = diffs[len(diffs)-1]
	return s
}
