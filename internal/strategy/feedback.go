package strategy

const (
	// feedbackBand is the |dP/dV| below which the tracker considers itself at
	// the maximum power point.
	feedbackBand = 0.05
	// feedbackNudge keeps the tracker probing inside the band.
	feedbackNudge = 0.001
	// feedbackEpsilon replaces a zero voltage change.
	feedbackEpsilon = 0.001
)

// FeedbackControl moves the reference in the sign of dP/dV.
type FeedbackControl struct {
	tracker
	stepper stepper
}

func NewFeedbackControl(vMax float64) *FeedbackControl {
	return &FeedbackControl{tracker: tracker{vMax: vMax, sampleRate: 1}, stepper: fixedStride{}}
}

func (s *FeedbackControl) Name() string { return "dP dV Feedback Control" }

func (s *FeedbackControl) Setup(p Params) error {
	if err := s.tracker.setup(p); err != nil {
		return err
	}
	s.stepper = newStepper(p)
	return nil
}

func (s *FeedbackControl) Iterate(vIn, iIn, tIn float64, cycle int) float64 {
	if !s.sampled(cycle) {
		return s.vRef
	}
	cur := newSample(vIn, iIn)
	dP := cur.P - s.prev.P
	dV := cur.V - s.prev.V
	if dV == 0 {
		dV = feedbackEpsilon
	}
	slope := dP / dV

	switch {
	case slope > -feedbackBand && slope < feedbackBand:
		s.set(s.vRef + feedbackNudge)
	case slope > 0:
		s.set(s.vRef + s.stepper.step(cur, s.prev, tIn))
	default:
		s.set(s.vRef - s.stepper.step(cur, s.prev, tIn))
	}
	s.observe(cur)
	return s.vRef
}
