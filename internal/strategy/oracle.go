package strategy

import "mppt-sim/internal/model"

// Oracle is a perfect-knowledge tracker. Before each decision the control
// loop tells it the true global maximum power point of the array, and it
// requests exactly that voltage.
//
// Notes:
//   - This is an upper bound for ranking real trackers, not a tracker itself.
//   - The reference lags one cycle behind a changing environment, the same
//     as any tracker in the loop.
type Oracle struct {
	tracker
	gmpp  model.Point
	known bool
}

func NewOracle(vMax float64) *Oracle {
	return &Oracle{tracker: tracker{vMax: vMax, sampleRate: 1}}
}

func (s *Oracle) Name() string { return "Oracle" }

func (s *Oracle) Setup(p Params) error {
	s.known = false
	return s.tracker.setup(p)
}

func (s *Oracle) ObserveGMPP(p model.Point) {
	s.gmpp = p
	s.known = true
}

func (s *Oracle) Iterate(vIn, iIn, _ float64, cycle int) float64 {
	if !s.sampled(cycle) {
		return s.vRef
	}
	if s.known {
		s.set(s.gmpp.V)
	}
	s.observe(newSample(vIn, iIn))
	return s.vRef
}
