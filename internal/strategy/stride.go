package strategy

import (
	"math"
	"strings"

	"mppt-sim/internal/model"
)

// Quadratic is A + B·t + C·t², used for temperature-dependent estimates.
type Quadratic struct {
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
	C float64 `json:"c" yaml:"c"`
}

func (q Quadratic) Eval(t float64) float64 { return q.A + q.B*t + q.C*t*t }

// Scale multiplies every coefficient by f, e.g. to go from one cell to a string.
func (q Quadratic) Scale(f float64) Quadratic {
	return Quadratic{A: q.A * f, B: q.B * f, C: q.C * f}
}

func (q Quadratic) IsZero() bool { return q == Quadratic{} }

var (
	// DefaultVBest is the fitted single-cell maximum power voltage (V) against
	// temperature (C).
	DefaultVBest = Quadratic{A: 0.717, B: -4.04e-3, C: 8.93e-6}
	// DefaultPowerEstimate is the fitted single-cell maximum power (W)
	// against temperature (C).
	DefaultPowerEstimate = Quadratic{A: 4.32, B: -0.0293, C: 6.4e-5}
)

// StrideMode selects how far a hill-climbing tracker moves per decision.
type StrideMode string

const (
	StrideFixed       StrideMode = "fixed"
	StrideOptimal     StrideMode = "optimal"
	StrideExponential StrideMode = "exponential"
	StrideBisection   StrideMode = "bisection"
)

func ParseStrideMode(name string) (StrideMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed":
		return StrideFixed, nil
	case "", "optimal", "adaptive":
		return StrideOptimal, nil
	case "exponential":
		return StrideExponential, nil
	case "bisection":
		return StrideBisection, nil
	default:
		return "", model.NewConfigError("stride_mode", "unknown stride mode %q", name)
	}
}

const (
	// strideError is the assumed fractional error of the VBest estimate.
	strideError = 0.05
	// strideFloor keeps the minimum stride non-zero.
	strideFloor = 0.001

	bisectionSlopeGain = 0.01
	bisectionMinDP     = 0.01
	bisectionMinDV     = 0.01
)

type stepper interface {
	step(s, prev Sample, t float64) float64
}

func newStepper(p Params) stepper {
	vb := p.VBest
	if vb.IsZero() {
		vb = DefaultVBest
	}
	switch p.StrideMode {
	case StrideFixed:
		return fixedStride{amount: p.Stride}
	case StrideExponential:
		return exponentialStride{vBest: vb}
	case StrideBisection:
		return bisectionStride{vBest: vb}
	default:
		return optimalStride{vBest: vb}
	}
}

// minStride is k²/(2(1-k))·vBest + ε.
func minStride(vBest float64) float64 {
	return strideError*strideError/(2*(1-strideError))*vBest + strideFloor
}

type fixedStride struct {
	amount float64
}

func (f fixedStride) step(Sample, Sample, float64) float64 { return f.amount }

// optimalStride steps |VBest(T) - V| + Vmin: large far from the estimate,
// small near it.
type optimalStride struct {
	vBest Quadratic
}

func (o optimalStride) step(s, _ Sample, t float64) float64 {
	vb := o.vBest.Eval(t)
	return math.Abs(vb-s.V) + minStride(vb)
}

// exponentialStride grows exponentially below VBest and falls to Vmin above it.
type exponentialStride struct {
	vBest Quadratic
}

func (e exponentialStride) step(s, _ Sample, t float64) float64 {
	vb := e.vBest.Eval(t)
	st := 0.0
	if s.V < vb {
		st = math.Exp((vb-s.V)/3) - 1
	}
	return minStride(vb) + st
}

// bisectionStride scales with the measured dP/dV on the rising side and
// halves the last move once the slope turns negative.
type bisectionStride struct {
	vBest Quadratic
}

func (b bisectionStride) step(s, prev Sample, t float64) float64 {
	dv := s.V - prev.V
	dp := s.P - prev.P
	st := 0.0
	if math.Abs(dp) >= bisectionMinDP && math.Abs(dv) >= bisectionMinDV {
		slope := dp / dv
		switch {
		case slope < 0:
			st = (s.V+prev.V)/2 - prev.V
		case slope > 0:
			st = slope * bisectionSlopeGain
		}
	}
	return math.Max(minStride(b.vBest.Eval(t)), math.Abs(st))
}
