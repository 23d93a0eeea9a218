package analysis

import (
	"sort"

	"mppt-sim/internal/backtest"
)

type RankedRun struct {
	Rank int
	RunSummary
}

// RankByEfficiency summarizes each run and sorts descending by tracking
// efficiency. Ties go to the run that settled first, then by name.
func RankByEfficiency(results []*backtest.Result, threshold float64) []RankedRun {
	out := make([]RankedRun, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		out = append(out, RankedRun{RunSummary: Summarize(res, threshold)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Efficiency != b.Efficiency {
			return a.Efficiency > b.Efficiency
		}
		if a.SettleCycle != b.SettleCycle {
			return settleKey(a.SettleCycle) < settleKey(b.SettleCycle)
		}
		return a.Strategy < b.Strategy
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func settleKey(c int) int {
	if c < 0 {
		return int(^uint(0) >> 1)
	}
	return c
}
