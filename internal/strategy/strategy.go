package strategy

import (
	"math"
	"strings"

	"mppt-sim/internal/model"
)

// Strategy is a maximum power point tracker. Iterate is called once per
// control cycle with the array measurement taken at the previous reference
// voltage and returns the next reference voltage.
type Strategy interface {
	Name() string
	Setup(p Params) error
	Iterate(vIn, iIn, tIn float64, cycle int) float64
}

// GMPPObserver is implemented by strategies that are told the true global
// maximum power point before each decision.
type GMPPObserver interface {
	ObserveGMPP(p model.Point)
}

// Sample is one array measurement.
type Sample struct {
	V float64
	I float64
	P float64
}

func newSample(v, i float64) Sample { return Sample{V: v, I: i, P: v * i} }

// Params configures a Strategy.
type Params struct {
	VRef       float64
	Stride     float64
	SampleRate int

	StrideMode StrideMode
	SearchMode SearchMode

	// VBest estimates the maximum power point voltage against temperature.
	VBest Quadratic
	// PowerEstimate estimates maximum power against temperature.
	PowerEstimate Quadratic
}

// DefaultParams are the parameters used when a configuration leaves them out.
func DefaultParams() Params {
	return Params{
		VRef:          0,
		Stride:        0.01,
		SampleRate:    1,
		StrideMode:    StrideOptimal,
		SearchMode:    SearchGolden,
		VBest:         DefaultVBest,
		PowerEstimate: DefaultPowerEstimate,
	}
}

func (p Params) validate() error {
	if p.SampleRate < 1 {
		return model.NewConfigError("sample_rate", "must be >= 1, got %d", p.SampleRate)
	}
	if p.Stride < 0 || math.IsNaN(p.Stride) || math.IsInf(p.Stride, 0) {
		return model.NewConfigError("stride", "must be a non-negative number, got %g", p.Stride)
	}
	if math.IsNaN(p.VRef) || math.IsInf(p.VRef, 0) {
		return model.NewConfigError("v_ref", "must be a finite number")
	}
	return nil
}

// Kind selects a Strategy implementation.
type Kind string

const (
	KindPandO                  Kind = "pando"
	KindIncrementalConductance Kind = "ic"
	KindFeedbackControl        Kind = "fc"
	KindPassthrough            Kind = "passthrough"
	KindOracle                 Kind = "oracle"
)

// Kinds lists every selectable strategy.
var Kinds = []Kind{KindPandO, KindIncrementalConductance, KindFeedbackControl, KindPassthrough, KindOracle}

// ParseKind accepts the short names above plus a few long-form aliases.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pando", "p&o", "perturb_and_observe":
		return KindPandO, nil
	case "ic", "incremental_conductance":
		return KindIncrementalConductance, nil
	case "fc", "feedback", "dp_dv_feedback":
		return KindFeedbackControl, nil
	case "passthrough", "pt":
		return KindPassthrough, nil
	case "oracle":
		return KindOracle, nil
	default:
		return "", model.NewConfigError("algorithm", "unknown mppt algorithm %q", name)
	}
}

// New returns an unconfigured strategy of kind bounded to [0, vMax].
func New(kind Kind, vMax float64) (Strategy, error) {
	if vMax <= 0 || math.IsNaN(vMax) {
		return nil, model.NewConfigError("v_max", "must be positive, got %g", vMax)
	}
	switch kind {
	case KindPandO:
		return NewPandO(vMax), nil
	case KindIncrementalConductance:
		return NewIncrementalConductance(vMax), nil
	case KindFeedbackControl:
		return NewFeedbackControl(vMax), nil
	case KindPassthrough:
		return NewPassthrough(vMax), nil
	case KindOracle:
		return NewOracle(vMax), nil
	default:
		return nil, model.NewConfigError("algorithm", "unknown mppt algorithm %q", string(kind))
	}
}

// tracker holds the state every strategy shares: the reference voltage, its
// bounds, sample-rate gating and the last sampled measurement.
type tracker struct {
	vRef       float64
	vMax       float64
	stride     float64
	sampleRate int

	prev Sample
}

func (t *tracker) setup(p Params) error {
	if err := p.validate(); err != nil {
		return err
	}
	t.stride = p.Stride
	t.sampleRate = p.SampleRate
	t.prev = Sample{}
	t.set(p.VRef)
	return nil
}

func (t *tracker) sampled(cycle int) bool {
	if t.sampleRate <= 1 {
		return true
	}
	return cycle%t.sampleRate == 0
}

// set clamps v into [0, vMax] and stores it as the reference.
func (t *tracker) set(v float64) float64 {
	t.vRef = clamp(v, 0, t.vMax)
	return t.vRef
}

func (t *tracker) observe(s Sample) { t.prev = s }

// VRef is the current reference voltage.
func (t *tracker) VRef() float64 { return t.vRef }

// VMax is the upper bound on the reference voltage.
func (t *tracker) VMax() float64 { return t.vMax }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (k Kind) String() string { return string(k) }
