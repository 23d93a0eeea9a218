package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeEvents() []Event {
	return []Event{
		{Cycle: 0, Conditions: Conditions{Irradiance: 1000, Temperature: 25}},
		{Cycle: 5, Conditions: Conditions{Irradiance: 500, Temperature: 30}},
		{Cycle: 10, Conditions: Conditions{Irradiance: 800, Temperature: 20}},
	}
}

func TestTimelineResolve(t *testing.T) {
	tl, err := NewTimeline(threeEvents())
	require.NoError(t, err)

	got, err := tl.Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, Conditions{Irradiance: 500, Temperature: 30}, got)

	got, err = tl.Resolve(7)
	require.NoError(t, err)
	assert.InDelta(t, 620, got.Irradiance, 1e-9)
	assert.InDelta(t, 26, got.Temperature, 1e-9)

	got, err = tl.Resolve(15)
	require.NoError(t, err)
	assert.Equal(t, Conditions{Irradiance: 800, Temperature: 20}, got)
}

func TestTimelineResolveIsIdempotent(t *testing.T) {
	tl, err := NewTimeline(threeEvents())
	require.NoError(t, err)

	first := map[int]Conditions{}
	for _, c := range []int{7, 15, 3, 0, 10, 7, 2} {
		got, err := tl.Resolve(c)
		require.NoError(t, err)
		if prev, ok := first[c]; ok {
			assert.Equal(t, prev, got, "cycle %d", c)
		}
		first[c] = got
	}
	assert.Equal(t, 3, tl.Len())

	// Backwards after forwards.
	a, _ := tl.Resolve(2)
	b, _ := tl.Resolve(8)
	c, _ := tl.Resolve(2)
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
}

func TestTimelineBeforeFirstEvent(t *testing.T) {
	tl, err := NewTimeline([]Event{
		{Cycle: 3, Conditions: Conditions{Irradiance: 900, Temperature: 40}},
		{Cycle: 6, Conditions: Conditions{Irradiance: 300, Temperature: 40}},
	})
	require.NoError(t, err)
	got, err := tl.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, 900.0, got.Irradiance)
}

func TestTimelineValidation(t *testing.T) {
	_, err := NewTimeline(nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewTimeline([]Event{
		{Cycle: 5, Conditions: Conditions{Irradiance: 1}},
		{Cycle: 5, Conditions: Conditions{Irradiance: 1}},
	})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewTimeline([]Event{{Cycle: 0, Conditions: Conditions{Irradiance: -1}}})
	assert.ErrorIs(t, err, ErrConfiguration)

	var nilTL *Timeline
	_, err = nilTL.Resolve(0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestTimelineCopiesInput(t *testing.T) {
	evs := threeEvents()
	tl, err := NewTimeline(evs)
	require.NoError(t, err)
	evs[1].Irradiance = 0
	got, _ := tl.Resolve(5)
	assert.Equal(t, 500.0, got.Irradiance)
}
