package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

func singleCell(t *testing.T) *model.Source {
	t.Helper()
	src := model.NewSource(model.ModelNonideal)
	require.NoError(t, src.SetupImpulse(1000, 25))
	return src
}

func setupFor(t *testing.T, kind strategy.Kind, src *model.Source) Setup {
	t.Helper()
	s, err := strategy.New(kind, src.MaxVoltage())
	require.NoError(t, err)
	p := strategy.DefaultParams()
	p.StrideMode = strategy.StrideFixed
	p.Stride = 0.02
	require.NoError(t, s.Setup(p))
	return Setup{
		Source:    src,
		Strategy:  s,
		Converter: model.NewConverter(0, model.DefaultLoadVoltage),
	}
}

func TestRunProducesOneRowPerCycle(t *testing.T) {
	src := singleCell(t)
	res, err := New().Run(context.Background(), setupFor(t, strategy.KindPandO, src), Options{MaxCycle: 40})
	require.NoError(t, err)

	require.Len(t, res.Ledger, 40)
	assert.Equal(t, 40, res.Cycles)
	assert.Equal(t, "Perturb and Observe", res.Strategy)
	assert.Equal(t, 40, src.Cycle())

	for i, r := range res.Ledger {
		assert.Equal(t, i, r.Cycle)
		assert.Equal(t, 1000.0, r.Irradiance)
		assert.GreaterOrEqual(t, r.PMPP, r.P-1e-9, "cycle %d tracked more than available", i)
		assert.GreaterOrEqual(t, r.VRef, 0.0)
		assert.LessOrEqual(t, r.VRef, src.MaxVoltage())
		assert.Nil(t, r.Curve)
	}
	// The first cycle measures the converter's initial 0 V.
	assert.Equal(t, 0.0, res.Ledger[0].V)
	assert.Equal(t, model.DirectionUp, res.Ledger[0].Direction)

	assert.Greater(t, res.Efficiency, 0.5)
	assert.LessOrEqual(t, res.Efficiency, 1.0)
	assert.InDelta(t, res.EnergyTracked/res.EnergyAvailable, res.Efficiency, 1e-12)
	assert.Equal(t, res.Ledger[39].PDiffA, res.PDiffA)
}

func TestOracleTracksWithinOneCycle(t *testing.T) {
	src := singleCell(t)
	res, err := New().Run(context.Background(), setupFor(t, strategy.KindOracle, src), Options{MaxCycle: 5})
	require.NoError(t, err)

	// Cycle 0 measures 0 V; every later cycle sits on the GMPP.
	assert.Equal(t, 1.0, res.Ledger[0].PDiffA)
	for _, r := range res.Ledger[1:] {
		assert.InDelta(t, r.VMPP, r.V, 1e-12)
		assert.InDelta(t, 0, r.PDiff, 1e-9)
	}
	assert.InDelta(t, 0.2, res.PDiffA, 1e-12)
}

func passthroughFor(t *testing.T, src *model.Source, mode strategy.SearchMode, vRef, stride float64) Setup {
	t.Helper()
	s, err := strategy.New(strategy.KindPassthrough, src.MaxVoltage())
	require.NoError(t, err)
	p := strategy.DefaultParams()
	p.SearchMode = mode
	p.VRef = vRef
	p.Stride = stride
	require.NoError(t, s.Setup(p))
	return Setup{
		Source:    src,
		Strategy:  s,
		Converter: model.NewConverter(vRef, model.DefaultLoadVoltage),
	}
}

func TestPassthroughBracketSearchesConverge(t *testing.T) {
	for _, mode := range []strategy.SearchMode{strategy.SearchGolden, strategy.SearchTernary} {
		t.Run(string(mode), func(t *testing.T) {
			src := singleCell(t)
			res, err := New().Run(context.Background(), passthroughFor(t, src, mode, 0, 0.01), Options{MaxCycle: 40})
			require.NoError(t, err)

			last := res.Ledger[len(res.Ledger)-1]
			assert.InDelta(t, last.VMPP, last.V, 0.02)
			assert.Less(t, last.PDiff, 0.01)
			assert.Greater(t, res.Efficiency, 0.7)
		})
	}
}

func TestPassthroughBisectionStaysInBracket(t *testing.T) {
	src := singleCell(t)
	res, err := New().Run(context.Background(), passthroughFor(t, src, strategy.SearchBisection, 0, 0.01), Options{MaxCycle: 30})
	require.NoError(t, err)

	// Cycle 0 measures 0 V and probes the midpoint; the rising slope then
	// moves the lower bound up to it.
	assert.InDelta(t, 0.4, res.Ledger[0].VRef, 1e-12)
	assert.InDelta(t, 0.4, res.Ledger[1].V, 1e-12)
	for _, r := range res.Ledger[1:] {
		assert.GreaterOrEqual(t, r.V, 0.4-1e-12, "cycle %d", r.Cycle)
		assert.LessOrEqual(t, r.V, src.MaxVoltage(), "cycle %d", r.Cycle)
	}
	assert.Greater(t, res.Efficiency, 0.3)
}

func TestPassthroughNewtonResetReachesSource(t *testing.T) {
	src := singleCell(t)
	// 0.78 + 0.05 is past the 0.8 V sweep limit, so the first step resets.
	res, err := New().Run(context.Background(), passthroughFor(t, src, strategy.SearchNewton, 0.78, 0.05), Options{MaxCycle: 10})
	require.NoError(t, err)

	assert.InDelta(t, 0.78, res.Ledger[0].V, 1e-12)
	assert.Equal(t, 0.0, res.Ledger[0].VRef)
	assert.Equal(t, model.DirectionDown, res.Ledger[0].Direction)

	// The reset must be measured at 0 V on the next cycle, after which
	// Newton starts over one stride up.
	assert.Equal(t, 0.0, res.Ledger[1].V)
	assert.InDelta(t, 0.05, res.Ledger[1].VRef, 1e-12)
	assert.InDelta(t, 0.05, res.Ledger[2].V, 1e-12)
	assert.Greater(t, res.Ledger[3].V, res.Ledger[2].V)
}

func TestPDiffAverageCountsOffPeakCycles(t *testing.T) {
	src := singleCell(t)
	res, err := New().Run(context.Background(), setupFor(t, strategy.KindPandO, src), Options{MaxCycle: 30})
	require.NoError(t, err)

	off := 0
	for i, r := range res.Ledger {
		if r.PDiff > DefaultDiffThreshold {
			off++
		}
		assert.InDelta(t, float64(off)/float64(i+1), r.PDiffA, 1e-12, "cycle %d", i)
	}
}

func TestRunRecordsCurveOnRequest(t *testing.T) {
	src := singleCell(t)
	res, err := New().Run(context.Background(), setupFor(t, strategy.KindIncrementalConductance, src), Options{
		MaxCycle:    2,
		RecordCurve: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Ledger[0].Curve)
	assert.Equal(t, 0.0, res.Ledger[0].Curve[0].V)
}

func TestRunFollowsRegime(t *testing.T) {
	src := model.NewSource(model.ModelNonideal)
	require.NoError(t, src.SetupRegime([]model.Event{
		{Cycle: 0, Conditions: model.Conditions{Irradiance: 1000, Temperature: 25}},
		{Cycle: 10, Conditions: model.Conditions{Irradiance: 200, Temperature: 25}},
	}))
	res, err := New().Run(context.Background(), setupFor(t, strategy.KindPandO, src), Options{MaxCycle: 12})
	require.NoError(t, err)

	assert.Equal(t, 600.0, res.Ledger[5].Irradiance)
	assert.Equal(t, 200.0, res.Ledger[11].Irradiance)
	assert.Less(t, res.Ledger[11].PMPP, res.Ledger[0].PMPP)
}

func TestRunStreamsToSink(t *testing.T) {
	src := singleCell(t)
	var seen []int
	sink := SinkFunc(func(r LedgerRow) error {
		seen = append(seen, r.Cycle)
		return nil
	})
	_, err := New().Run(context.Background(), setupFor(t, strategy.KindFeedbackControl, src), Options{MaxCycle: 3, Sink: sink})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestRunStopsOnSinkError(t *testing.T) {
	src := singleCell(t)
	boom := errors.New("disk full")
	sink := SinkFunc(func(r LedgerRow) error {
		if r.Cycle == 2 {
			return boom
		}
		return nil
	})
	_, err := New().Run(context.Background(), setupFor(t, strategy.KindPandO, src), Options{MaxCycle: 5, Sink: sink})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "cycle 2")
}

func TestRunHonorsCancellation(t *testing.T) {
	src := singleCell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Run(ctx, setupFor(t, strategy.KindPandO, src), Options{MaxCycle: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsBadSetup(t *testing.T) {
	src := singleCell(t)
	good := setupFor(t, strategy.KindPandO, src)

	_, err := New().Run(context.Background(), good, Options{})
	assert.ErrorIs(t, err, model.ErrConfiguration)

	empty := good
	empty.Source = model.NewSource(model.ModelNonideal)
	_, err = New().Run(context.Background(), empty, Options{MaxCycle: 1})
	assert.ErrorIs(t, err, model.ErrConfiguration)

	noStrat := good
	noStrat.Strategy = nil
	_, err = New().Run(context.Background(), noStrat, Options{MaxCycle: 1})
	assert.Error(t, err)
}

func TestLedgerCSV(t *testing.T) {
	src := singleCell(t)
	res, err := New().Run(context.Background(), setupFor(t, strategy.KindPandO, src), Options{MaxCycle: 4})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, WriteLedgerCSV(path, res.Ledger))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, ledgerHeader, recs[0])
	assert.Equal(t, "3", recs[4][0])
	assert.Equal(t, "1000.000000", recs[1][1])
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf)
	require.NoError(t, sink.Record(LedgerRow{Cycle: 0, Direction: model.DirectionUp}))
	require.NoError(t, sink.Record(LedgerRow{Cycle: 1, Direction: model.DirectionHold}))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "cycle", recs[0][0])
	assert.Equal(t, "HOLD", recs[2][12])
}
