package model

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// Conditions is the environmental snapshot a cell is evaluated under.
// Irradiance is in W/m^2, Temperature in degrees C. Load is carried through
// from regime data and is not consumed by the device models.
type Conditions struct {
	Irradiance  float64 `json:"irradiance" yaml:"irradiance"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Load        float64 `json:"load,omitempty" yaml:"load,omitempty"`
}

// Event pins Conditions to a cycle of a regime.
type Event struct {
	Cycle int `json:"cycle" yaml:"cycle"`
	Conditions
}

// Timeline is a sparse, cycle-indexed environment profile.
// Events are fixed at construction; Resolve never mutates the stored set.
type Timeline struct {
	events []Event

	// cursor is the index of the left event of the last bracket found.
	// Sequential cycles hit it without a search.
	cursor int
}

// NewTimeline validates and copies events. Cycles must be non-negative and
// strictly increasing; irradiance must be non-negative.
func NewTimeline(events []Event) (*Timeline, error) {
	if len(events) == 0 {
		return nil, configErr("regime", "timeline has no events")
	}
	cp := make([]Event, len(events))
	copy(cp, events)
	for i, ev := range cp {
		if ev.Cycle < 0 {
			return nil, configErr("regime", "event %d has negative cycle %d", i, ev.Cycle)
		}
		if ev.Irradiance < 0 {
			return nil, configErr("regime", "event %d has negative irradiance %g", i, ev.Irradiance)
		}
		if i > 0 && ev.Cycle <= cp[i-1].Cycle {
			return nil, configErr("regime", "event %d cycle %d not after cycle %d", i, ev.Cycle, cp[i-1].Cycle)
		}
	}
	return &Timeline{events: cp}, nil
}

// Len reports the number of stored events.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.events)
}

// Events returns a copy of the stored events.
func (t *Timeline) Events() []Event {
	if t == nil {
		return nil
	}
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Resolve returns the conditions at cycle.
//
// Exact matches return the stored values. Cycles between two events are
// linearly interpolated per quantity. Cycles after the last event hold the
// last event's values. Cycles before the first event take the first event's
// values.
func (t *Timeline) Resolve(cycle int) (Conditions, error) {
	if t.Len() == 0 {
		return Conditions{}, configErr("regime", "timeline has no events")
	}
	first := t.events[0]
	last := t.events[len(t.events)-1]
	switch {
	case cycle <= first.Cycle:
		return first.Conditions, nil
	case cycle >= last.Cycle:
		if cycle > last.Cycle {
			log.Debug().Int("cycle", cycle).Int("last", last.Cycle).Msg("regime exhausted, holding last event")
		}
		return last.Conditions, nil
	}

	i := t.bracket(cycle)
	left, right := t.events[i], t.events[i+1]
	if left.Cycle == cycle {
		return left.Conditions, nil
	}
	span := float64(right.Cycle - left.Cycle)
	dc := float64(cycle - left.Cycle)
	return Conditions{
		Irradiance:  left.Irradiance + (right.Irradiance-left.Irradiance)/span*dc,
		Temperature: left.Temperature + (right.Temperature-left.Temperature)/span*dc,
		Load:        left.Load + (right.Load-left.Load)/span*dc,
	}, nil
}

// bracket finds i such that events[i].Cycle <= cycle < events[i+1].Cycle.
// Callers guarantee first.Cycle < cycle < last.Cycle.
func (t *Timeline) bracket(cycle int) int {
	c := t.cursor
	if c >= 0 && c+1 < len(t.events) && t.events[c].Cycle <= cycle && cycle < t.events[c+1].Cycle {
		return c
	}
	if c+2 < len(t.events) && t.events[c+1].Cycle <= cycle && cycle < t.events[c+2].Cycle {
		t.cursor = c + 1
		return t.cursor
	}
	// First event with Cycle > cycle, minus one.
	i := sort.Search(len(t.events), func(i int) bool { return t.events[i].Cycle > cycle }) - 1
	t.cursor = i
	return i
}
