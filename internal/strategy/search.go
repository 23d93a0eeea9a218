package strategy

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"mppt-sim/internal/model"
)

// SearchMode selects the univariate search a Passthrough tracker runs.
type SearchMode string

const (
	SearchGolden    SearchMode = "golden"
	SearchTernary   SearchMode = "ternary"
	SearchBisection SearchMode = "bisection"
	SearchNewton    SearchMode = "newton"
)

func ParseSearchMode(name string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "golden":
		return SearchGolden, nil
	case "ternary":
		return SearchTernary, nil
	case "bisection":
		return SearchBisection, nil
	case "newton":
		return SearchNewton, nil
	default:
		return "", model.NewConfigError("search_mode", "unknown search mode %q", name)
	}
}

// Search proposes the next probe voltage from the latest measurement and the
// one before it. Searches keep running; they never report completion.
type Search interface {
	Next(cur, prev Sample, t float64) float64
}

func newSearch(p Params, vMax float64) Search {
	switch p.SearchMode {
	case SearchTernary:
		return NewTernary(0, vMax)
	case SearchBisection:
		return NewBisection(0, vMax)
	case SearchNewton:
		return NewNewton(vMax, p.Stride, p.PowerEstimate)
	default:
		return NewGolden(0, vMax)
	}
}

type phase int

const (
	phaseProbeLeft phase = iota
	phaseProbeRight
	phaseCompare
)

// invPhi is 1/φ.
var invPhi = (math.Sqrt(5) - 1) / 2

// Golden is golden-section search for the maximum of P(V) on [l, r]. After
// the first round only one new interior point is probed per comparison.
type Golden struct {
	l, r   float64
	x1, x2 float64
	p1, p2 float64

	phase        phase
	pendingRight bool
}

func NewGolden(l, r float64) *Golden { return &Golden{l: l, r: r} }

func (g *Golden) Bracket() (float64, float64) { return g.l, g.r }

func (g *Golden) Next(cur, _ Sample, _ float64) float64 {
	switch g.phase {
	case phaseProbeLeft:
		g.x1 = g.r - invPhi*(g.r-g.l)
		g.phase = phaseProbeRight
		return g.x1
	case phaseProbeRight:
		g.p1 = cur.P
		g.x2 = g.l + invPhi*(g.r-g.l)
		g.phase = phaseCompare
		g.pendingRight = true
		return g.x2
	}

	if g.pendingRight {
		g.p2 = cur.P
	} else {
		g.p1 = cur.P
	}
	if g.p1 > g.p2 {
		g.r = g.x2
		g.x2, g.p2 = g.x1, g.p1
		g.x1 = g.r - invPhi*(g.r-g.l)
		g.pendingRight = false
		return g.x1
	}
	g.l = g.x1
	g.x1, g.p1 = g.x2, g.p2
	g.x2 = g.l + invPhi*(g.r-g.l)
	g.pendingRight = true
	return g.x2
}

// Ternary probes the one-third and two-thirds points of [l, r] each round
// and discards the third on the lower-power side. The comparison happens on
// the same call that probes the next left point.
type Ternary struct {
	l, r   float64
	x1, x2 float64
	p1     float64

	phase phase
}

func NewTernary(l, r float64) *Ternary { return &Ternary{l: l, r: r} }

func (s *Ternary) Bracket() (float64, float64) { return s.l, s.r }

func (s *Ternary) Next(cur, _ Sample, _ float64) float64 {
	switch s.phase {
	case phaseProbeRight:
		s.p1 = cur.P
		s.x2 = s.r - (s.r-s.l)/3
		s.phase = phaseCompare
		return s.x2
	case phaseCompare:
		if s.p1 > cur.P {
			s.r = s.x2
		} else {
			s.l = s.x1
		}
	}
	s.x1 = s.l + (s.r-s.l)/3
	s.phase = phaseProbeRight
	return s.x1
}

// bisectionTolerance is the |dP/dV| treated as flat.
const bisectionTolerance = 0.01

// Bisection halves [l, r] toward the side the local dP/dV points to and
// probes the new midpoint. A flat slope holds the current voltage; a power
// change under a held voltage restarts the search on the full bracket.
type Bisection struct {
	l, r   float64
	l0, r0 float64
	probe  float64

	started bool
}

func NewBisection(l, r float64) *Bisection {
	return &Bisection{l: l, r: r, l0: l, r0: r}
}

func (b *Bisection) Bracket() (float64, float64) { return b.l, b.r }

func (b *Bisection) Next(cur, prev Sample, _ float64) float64 {
	if !b.started {
		b.started = true
		b.probe = (b.l + b.r) / 2
		return b.probe
	}
	dV := cur.V - prev.V
	dP := cur.P - prev.P
	slope := 0.0
	if dV != 0 {
		slope = dP / dV
	}
	if math.Abs(slope) <= bisectionTolerance {
		if dV == 0 && dP != 0 {
			b.l, b.r = b.l0, b.r0
			b.probe = (b.l + b.r) / 2
			return b.probe
		}
		return cur.V
	}
	if slope > 0 {
		b.l = b.probe
	} else {
		b.r = b.probe
	}
	b.probe = (b.l + b.r) / 2
	return b.probe
}

// newtonSafety scales the power estimate below the true maximum so that
// f(V) = P_est - P(V) has a real root.
const newtonSafety = 0.995

// Newton runs secant-Newton iterations on f(V) = -V·I + k·P_est(T).
// Results outside [0, vMax] reset the probe to 0, and the iteration starts
// over from there with a first step of stride.
type Newton struct {
	vMax     float64
	stride   float64
	estimate Quadratic

	started bool
	vPrev   float64
	fPrev   float64
}

func NewNewton(vMax, stride float64, estimate Quadratic) *Newton {
	if stride <= 0 {
		stride = 0.01
	}
	if estimate.IsZero() {
		estimate = DefaultPowerEstimate
	}
	return &Newton{vMax: vMax, stride: stride, estimate: estimate}
}

func (n *Newton) Next(cur, _ Sample, t float64) float64 {
	f := -cur.P + n.estimate.Eval(t)*newtonSafety
	var next float64
	if !n.started {
		n.started = true
		next = cur.V + n.stride
	} else {
		dV := cur.V - n.vPrev
		switch {
		case dV == 0:
			next = cur.V
		default:
			dF := (f - n.fPrev) / dV
			if dF == 0 {
				next = cur.V + dV/2
			} else {
				next = cur.V - f/dF
			}
		}
	}
	n.vPrev, n.fPrev = cur.V, f

	if next < 0 || next > n.vMax || math.IsNaN(next) {
		log.Warn().Float64("v", next).Float64("v_max", n.vMax).Msg("newton step out of range, resetting to 0")
		n.started = false
		return 0
	}
	return next
}
