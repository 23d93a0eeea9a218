package strategy

// conductanceEpsilon stands in for a zero array voltage in -I/V.
const conductanceEpsilon = 1e-6

// IncrementalConductance compares the incremental conductance dI/dV with
// the negative instantaneous conductance -I/V; they are equal at the
// maximum power point.
type IncrementalConductance struct {
	tracker
	stepper stepper
}

func NewIncrementalConductance(vMax float64) *IncrementalConductance {
	return &IncrementalConductance{tracker: tracker{vMax: vMax, sampleRate: 1}, stepper: fixedStride{}}
}

func (s *IncrementalConductance) Name() string { return "Incremental Conductance" }

func (s *IncrementalConductance) Setup(p Params) error {
	if err := s.tracker.setup(p); err != nil {
		return err
	}
	s.stepper = newStepper(p)
	return nil
}

func (s *IncrementalConductance) Iterate(vIn, iIn, tIn float64, cycle int) float64 {
	if !s.sampled(cycle) {
		return s.vRef
	}
	cur := newSample(vIn, iIn)
	dV := cur.V - s.prev.V
	dI := cur.I - s.prev.I
	step := s.stepper.step(cur, s.prev, tIn)

	if dV == 0 {
		switch {
		case dI > 0:
			s.set(s.vRef - step)
		case dI < 0:
			s.set(s.vRef + step)
		}
	} else {
		v := cur.V
		if v == 0 {
			v = conductanceEpsilon
		}
		inc := dI / dV
		neg := -cur.I / v
		switch {
		case inc > neg:
			s.set(s.vRef + step)
		case inc < neg:
			s.set(s.vRef - step)
		}
	}
	s.observe(cur)
	return s.vRef
}
