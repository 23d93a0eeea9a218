package config

import (
	"fmt"
	"math"

	"mppt-sim/internal/analysis"
	"mppt-sim/internal/backtest"
	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

// CalibrationIrradiance is the irradiance calibration sweeps run at.
const CalibrationIrradiance = 1000

// Run is a configuration turned into live components, ready for
// backtest.Engine.Run.
type Run struct {
	Setup   backtest.Setup
	Options backtest.Options
	// Calibration is set when the config asked for one.
	Calibration *analysis.Calibration
}

// Build constructs the source, strategy and converter. The config should
// already have defaults applied and be validated.
func (c *Config) Build(cache *data.CurrentCache) (*Run, error) {
	src, err := c.Source.Build(cache)
	if err != nil {
		return nil, err
	}
	kind, err := strategy.ParseKind(c.MPPT.Algorithm)
	if err != nil {
		return nil, err
	}
	strat, err := strategy.New(kind, src.MaxVoltage())
	if err != nil {
		return nil, err
	}

	run := &Run{}
	params, err := c.strategyParams()
	if err != nil {
		return nil, err
	}
	if c.MPPT.Calibrate {
		cal, err := analysis.Calibrate(src.ModelType(), c.Source.CellParams(), CalibrationIrradiance, nil, c.ivStep(), nil)
		if err != nil {
			return nil, fmt.Errorf("calibrate: %w", err)
		}
		run.Calibration = &cal
		if len(c.MPPT.VBest) == 0 {
			params.VBest = cal.VBest
		}
		if len(c.MPPT.PowerEstimate) == 0 {
			params.PowerEstimate = cal.PowerEstimate
		}
	}
	// Estimates are per cell; the tracker works in array volts.
	cells := float64(src.NumCells())
	params.VBest = params.VBest.Scale(cells)
	params.PowerEstimate = params.PowerEstimate.Scale(cells)

	if err := strat.Setup(params); err != nil {
		return nil, err
	}

	conv := model.NewConverter(0, c.Converter.LoadVoltage)
	conv.SetPulseWidth(math.Min(params.VRef, src.MaxVoltage()))

	run.Setup = backtest.Setup{Source: src, Strategy: strat, Converter: conv}
	run.Options = backtest.Options{
		MaxCycle:      c.Simulation.MaxCycle,
		IVStep:        c.Simulation.IVStep,
		RecordCurve:   c.Simulation.RecordCurve,
		DiffThreshold: c.Simulation.DiffThreshold,
	}
	return run, nil
}

func (c *Config) ivStep() float64 {
	if c.Simulation.IVStep > 0 {
		return c.Simulation.IVStep
	}
	return backtest.DefaultIVStep
}

func (c *Config) strategyParams() (strategy.Params, error) {
	p := strategy.DefaultParams()
	p.VRef = c.MPPT.VRef
	p.Stride = c.MPPT.Stride
	p.SampleRate = c.MPPT.SampleRate

	var err error
	if p.StrideMode, err = strategy.ParseStrideMode(c.MPPT.StrideMode); err != nil {
		return p, err
	}
	if p.SearchMode, err = strategy.ParseSearchMode(c.MPPT.SearchMode); err != nil {
		return p, err
	}
	if q := c.MPPT.VBest; len(q) == 3 {
		p.VBest = strategy.Quadratic{A: q[0], B: q[1], C: q[2]}
	}
	if q := c.MPPT.PowerEstimate; len(q) == 3 {
		p.PowerEstimate = strategy.Quadratic{A: q[0], B: q[1], C: q[2]}
	}
	return p, nil
}
