package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

const (
	DefaultIVStep        = 0.01
	DefaultDiffThreshold = 0.05
)

// Sink receives each ledger row as soon as the cycle completes.
type Sink interface {
	Record(row LedgerRow) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(row LedgerRow) error

func (f SinkFunc) Record(row LedgerRow) error { return f(row) }

// Setup is the set of components one run drives. Components are owned by
// the run; nothing in them may be shared with a concurrent run.
type Setup struct {
	Source    *model.Source
	Strategy  strategy.Strategy
	Converter *model.Converter
}

type Options struct {
	MaxCycle int
	// IVStep is the per-cell voltage step of the reference IV sweep.
	IVStep float64
	// RecordCurve keeps the full IV curve in every ledger row.
	RecordCurve bool
	// Pace delays each cycle. Zero runs as fast as possible.
	Pace time.Duration
	// DiffThreshold is the PDiff above which a cycle counts as off-peak.
	DiffThreshold float64
	Sink          Sink
}

type Engine struct{}

func New() *Engine { return &Engine{} }

// Run drives the control loop for opts.MaxCycle cycles:
//  1. sweep the array for its true maximum power point
//  2. measure the array at the converter's voltage
//  3. ask the strategy for a new reference voltage
//  4. hand the reference to the converter
//  5. record, then advance the environment one cycle
//
// The context is checked between cycles.
func (e *Engine) Run(ctx context.Context, s Setup, opts Options) (*Result, error) {
	if s.Source == nil {
		return nil, errors.New("source is nil")
	}
	if s.Strategy == nil {
		return nil, errors.New("strategy is nil")
	}
	if s.Converter == nil {
		return nil, errors.New("converter is nil")
	}
	if opts.MaxCycle <= 0 {
		return nil, model.NewConfigError("max_cycle", "must be positive, got %d", opts.MaxCycle)
	}
	if opts.IVStep == 0 {
		opts.IVStep = DefaultIVStep
	}
	if opts.DiffThreshold == 0 {
		opts.DiffThreshold = DefaultDiffThreshold
	}
	cells := s.Source.NumCells()
	if cells == 0 {
		return nil, model.NewConfigError("source", "not set up")
	}

	log.Info().
		Str("strategy", s.Strategy.Name()).
		Int("max_cycle", opts.MaxCycle).
		Int("cells", cells).
		Msg("run starting")

	ledger := make([]LedgerRow, 0, opts.MaxCycle)
	var tracked, available float64
	offPeak := 0
	prevRef := s.Converter.VoltageOut()

	for cycle := 0; cycle < opts.MaxCycle; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		curve, gmpp, err := s.Source.IV(opts.IVStep)
		if err != nil {
			return nil, fmt.Errorf("cycle %d iv sweep: %w", cycle, err)
		}
		if o, ok := s.Strategy.(strategy.GMPPObserver); ok {
			o.ObserveGMPP(gmpp)
		}

		op, err := s.Source.Iterate(s.Converter.VoltageOut() / float64(cells))
		if err != nil {
			return nil, fmt.Errorf("cycle %d source: %w", cycle, err)
		}
		p := op.Power()

		vRef := s.Strategy.Iterate(op.V, op.I, op.Env.Temperature, cycle)
		s.Converter.SetPulseWidth(vRef)

		pDiff := 0.0
		if gmpp.P+p != 0 {
			pDiff = math.Abs(gmpp.P-p) / ((gmpp.P + p) / 2)
		}
		if pDiff > opts.DiffThreshold {
			offPeak++
		}
		tracked += p
		available += gmpp.P
		eff := 0.0
		if available > 0 {
			eff = tracked / available
		}

		row := LedgerRow{
			Cycle: cycle,

			Irradiance:  op.Env.Irradiance,
			Temperature: op.Env.Temperature,
			Load:        op.Env.Load,

			VMPP: gmpp.V,
			IMPP: gmpp.I,
			PMPP: gmpp.P,

			V: op.V,
			I: op.I,
			P: p,

			VRef:       vRef,
			PulseWidth: s.Converter.PulseWidth(),
			Direction:  model.DirectionFromDelta(vRef - prevRef),

			PDiff:      pDiff,
			PDiffA:     float64(offPeak) / float64(cycle+1),
			Efficiency: eff,
		}
		if opts.RecordCurve {
			row.Curve = curve
		}
		ledger = append(ledger, row)
		prevRef = vRef

		if opts.Sink != nil {
			if err := opts.Sink.Record(row); err != nil {
				return nil, fmt.Errorf("cycle %d sink: %w", cycle, err)
			}
		}

		s.Source.IncrementCycle()

		if opts.Pace > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.Pace):
			}
		}
	}

	res := &Result{
		Strategy:        s.Strategy.Name(),
		Ledger:          ledger,
		Cycles:          len(ledger),
		EnergyTracked:   tracked,
		EnergyAvailable: available,
	}
	if available > 0 {
		res.Efficiency = tracked / available
	}
	if n := len(ledger); n > 0 {
		res.PDiffA = ledger[n-1].PDiffA
	}

	log.Info().
		Str("strategy", res.Strategy).
		Int("cycles", res.Cycles).
		Float64("efficiency", res.Efficiency).
		Msg("run finished")
	return res, nil
}
