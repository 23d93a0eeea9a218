package strategy

// Passthrough sets the reference voltage directly to the probe point of a
// univariate search instead of perturbing it.
type Passthrough struct {
	tracker
	mode   SearchMode
	search Search
}

func NewPassthrough(vMax float64) *Passthrough {
	return &Passthrough{
		tracker: tracker{vMax: vMax, sampleRate: 1},
		mode:    SearchGolden,
		search:  NewGolden(0, vMax),
	}
}

func (s *Passthrough) Name() string { return "Passthrough" }

// Mode is the configured search.
func (s *Passthrough) Mode() SearchMode { return s.mode }

// Search exposes the running search for inspection.
func (s *Passthrough) Search() Search { return s.search }

func (s *Passthrough) Setup(p Params) error {
	if err := s.tracker.setup(p); err != nil {
		return err
	}
	if p.SearchMode == "" {
		p.SearchMode = SearchGolden
	}
	s.mode = p.SearchMode
	s.search = newSearch(p, s.vMax)
	return nil
}

func (s *Passthrough) Iterate(vIn, iIn, tIn float64, cycle int) float64 {
	if !s.sampled(cycle) {
		return s.vRef
	}
	cur := newSample(vIn, iIn)
	s.set(s.search.Next(cur, s.prev, tIn))
	s.observe(cur)
	return s.vRef
}
