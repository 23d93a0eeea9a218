package strategy

// PandO is perturb and observe: keep moving in the direction that last
// increased power, reverse when power drops.
type PandO struct {
	tracker
	stepper stepper
}

func NewPandO(vMax float64) *PandO {
	return &PandO{tracker: tracker{vMax: vMax, sampleRate: 1}, stepper: fixedStride{}}
}

func (s *PandO) Name() string { return "Perturb and Observe" }

func (s *PandO) Setup(p Params) error {
	if err := s.tracker.setup(p); err != nil {
		return err
	}
	s.stepper = newStepper(p)
	return nil
}

func (s *PandO) Iterate(vIn, iIn, tIn float64, cycle int) float64 {
	if !s.sampled(cycle) {
		return s.vRef
	}
	cur := newSample(vIn, iIn)
	dP := cur.P - s.prev.P
	dV := cur.V - s.prev.V
	step := s.stepper.step(cur, s.prev, tIn)

	switch {
	case dP >= 0 && dV >= 0:
		s.set(s.vRef + step)
	case dP >= 0 && dV < 0:
		s.set(s.vRef - step)
	case dP < 0 && dV > 0:
		s.set(s.vRef - step)
	default:
		s.set(s.vRef + step)
	}
	s.observe(cur)
	return s.vRef
}
