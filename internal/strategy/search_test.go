package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bracketed interface {
	Search
	Bracket() (float64, float64)
}

// parabola peaks at V = 0.5 with P = 1.
func parabola(v float64) Sample {
	p := 1 - (v-0.5)*(v-0.5)
	return Sample{V: v, I: p / v, P: p}
}

func drive(t *testing.T, s bracketed, calls int) {
	t.Helper()
	cur := Sample{}
	prev := Sample{}
	l, r := s.Bracket()
	for n := 0; n < calls; n++ {
		v := s.Next(cur, prev, 25)
		nl, nr := s.Bracket()
		require.GreaterOrEqual(t, nl, l, "left bound moved out at call %d", n)
		require.LessOrEqual(t, nr, r, "right bound moved out at call %d", n)
		require.LessOrEqual(t, nl, 0.5, "lost the peak at call %d", n)
		require.GreaterOrEqual(t, nr, 0.5, "lost the peak at call %d", n)
		if nr-nl != r-l {
			assert.Less(t, nr-nl, r-l)
		}
		l, r = nl, nr
		prev = cur
		cur = parabola(v)
	}
}

func TestGoldenBracketShrinks(t *testing.T) {
	g := NewGolden(0, 0.8)
	drive(t, g, 25)
	l, r := g.Bracket()
	assert.Less(t, r-l, 0.001)
	assert.InDelta(t, 0.5, (l+r)/2, 0.001)
}

func TestGoldenReusesInteriorPoint(t *testing.T) {
	g := NewGolden(0, 0.8)
	x1 := g.Next(Sample{}, Sample{}, 25)
	x2 := g.Next(parabola(x1), Sample{}, 25)
	require.Greater(t, x2, x1)

	// x1 ~ 0.306 and x2 ~ 0.494: p(x2) > p(x1), so the left bound moves to
	// x1 and the old x2 is kept as the new x1.
	next := g.Next(parabola(x2), Sample{}, 25)
	l, r := g.Bracket()
	assert.InDelta(t, x1, l, 1e-12)
	assert.InDelta(t, 0.8, r, 1e-12)
	assert.InDelta(t, x2, g.x1, 1e-12)
	assert.InDelta(t, l+invPhi*(r-l), next, 1e-12)
}

func TestTernaryBracketShrinks(t *testing.T) {
	s := NewTernary(0, 0.8)
	drive(t, s, 60)
	l, r := s.Bracket()
	assert.Less(t, r-l, 0.001)
	assert.InDelta(t, 0.5, (l+r)/2, 0.001)
}

func TestTernaryRoundShrinksToTwoThirds(t *testing.T) {
	s := NewTernary(0, 0.9)
	x1 := s.Next(Sample{}, Sample{}, 25)
	assert.InDelta(t, 0.3, x1, 1e-12)
	x2 := s.Next(parabola(x1), Sample{}, 25)
	assert.InDelta(t, 0.6, x2, 1e-12)
	next := s.Next(parabola(x2), Sample{}, 25)
	l, r := s.Bracket()
	assert.InDelta(t, 0.3, l, 1e-12)
	assert.InDelta(t, 0.9, r, 1e-12)
	assert.InDelta(t, 0.5, next, 1e-12)
}

func TestBisectionHalvesBracket(t *testing.T) {
	b := NewBisection(0, 0.8)
	first := parabola(0)
	first.P, first.I = 0, 6
	mid := b.Next(first, Sample{}, 25)
	assert.InDelta(t, 0.4, mid, 1e-12)

	b.Next(parabola(mid), first, 25)
	l, r := b.Bracket()
	assert.InDelta(t, 0.4, l, 1e-12)
	assert.InDelta(t, 0.8, r, 1e-12)
	assert.InDelta(t, 0.4, r-l, 1e-12)
}

func TestBisectionHoldsWhenFlat(t *testing.T) {
	b := NewBisection(0, 0.8)
	b.Next(Sample{}, Sample{}, 25)
	cur := Sample{V: 0.4, I: 2.5, P: 1}
	prev := Sample{V: 0.39, I: 1.0 / 0.39, P: 1}
	assert.Equal(t, 0.4, b.Next(cur, prev, 25))

	// Held voltage, changed power: restart on the full bracket.
	moved := Sample{V: 0.4, I: 2, P: 0.8}
	assert.InDelta(t, 0.4, b.Next(moved, cur, 25), 1e-12)
	l, r := b.Bracket()
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.8, r)
}

func TestNewtonSteps(t *testing.T) {
	n := NewNewton(0.8, 0.01, DefaultPowerEstimate)
	first := n.Next(Sample{V: 0.5, I: 4, P: 2}, Sample{}, 25)
	assert.InDelta(t, 0.51, first, 1e-12)

	// Same voltage twice: converged, hold.
	n2 := NewNewton(0.8, 0.01, DefaultPowerEstimate)
	n2.Next(Sample{V: 0.5, I: 4, P: 2}, Sample{}, 25)
	assert.Equal(t, 0.5, n2.Next(Sample{V: 0.5, I: 4, P: 2}, Sample{}, 25))
}

func TestNewtonResetsOutOfRange(t *testing.T) {
	n := NewNewton(0.8, 0.01, DefaultPowerEstimate)
	n.Next(Sample{V: 0.5, I: 4, P: 2}, Sample{}, 25)
	// f falls by 0.08 over 0.02 V, so the secant step lands near 0.9.
	out := n.Next(Sample{V: 0.52, I: 4, P: 2.08}, Sample{}, 25)
	assert.Equal(t, 0.0, out)

	// After a reset the next measurement at 0 V restarts with one stride.
	assert.InDelta(t, 0.01, n.Next(Sample{}, Sample{}, 25), 1e-12)
}

func TestNewtonFindsCalibratedRoot(t *testing.T) {
	// P(V) = 1 - (V-0.5)², max 1 at 0.5. Estimate of 1 scaled by 0.995
	// gives roots at 0.5 ± sqrt(0.005).
	n := NewNewton(0.8, 0.02, Quadratic{A: 1})
	v := 0.3
	cur := parabola(v)
	for i := 0; i < 30; i++ {
		v = n.Next(cur, Sample{}, 25)
		cur = parabola(v)
	}
	assert.InDelta(t, 0.5, v, 0.08)
	assert.Greater(t, cur.P, 0.99)
}

func TestPassthroughUsesSearch(t *testing.T) {
	pt := NewPassthrough(0.8)
	p := DefaultParams()
	p.SearchMode = SearchBisection
	require.NoError(t, pt.Setup(p))
	assert.Equal(t, SearchBisection, pt.Mode())

	assert.InDelta(t, 0.4, pt.Iterate(0, 6, 25, 0), 1e-12)
	v := pt.Iterate(0.4, 5.9, 25, 1)
	assert.InDelta(t, 0.6, v, 1e-12)
	l, r := pt.Search().(*Bisection).Bracket()
	assert.Equal(t, 0.4, l)
	assert.Equal(t, 0.8, r)
}
