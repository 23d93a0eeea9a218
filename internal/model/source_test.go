package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceAggregatesModules(t *testing.T) {
	s := NewSource(ModelNonideal)
	require.NoError(t, s.SetupModules([]ModuleSpec{
		{Index: 0, Shape: ShapeSingle, Impulse: &Conditions{Irradiance: 1000, Temperature: 25}},
		{Index: 1, Shape: ShapeDouble, Impulse: &Conditions{Irradiance: 400, Temperature: 25}},
	}))
	assert.Equal(t, 3, s.NumCells())
	assert.InDelta(t, 2.4, s.MaxVoltage(), 1e-12)

	op, err := s.Iterate(0.4)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, op.V, 1e-12)

	cell := NewCell(ModelNonideal)
	dim := cell.Model(0.4, Conditions{Irradiance: 400, Temperature: 25})
	assert.InDelta(t, dim, op.I, 1e-12)
	assert.Equal(t, 400.0, op.Env.Irradiance)

	envs, err := s.Conditions()
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, 1000.0, envs[0].Irradiance)
}

func TestSourceSetupFailureLeavesNoModules(t *testing.T) {
	s := NewSource(ModelNonideal)
	require.NoError(t, s.SetupImpulse(1000, 25))
	require.Len(t, s.Modules(), 1)

	err := s.SetupModules([]ModuleSpec{
		{Index: 0, Shape: ShapeSingle, Impulse: &Conditions{Irradiance: 1000, Temperature: 25}},
		{Index: 1, Shape: ShapeQuad, Regime: []Event{}},
	})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, s.Modules())
	assert.Equal(t, 0, s.NumCells())

	_, err = s.Iterate(0.4)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, _, err = s.IV(0.01)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSourceIVTruncatesToShortestCurve(t *testing.T) {
	s := NewSource(ModelIdeal)
	require.NoError(t, s.SetupModules([]ModuleSpec{
		{Index: 0, Shape: ShapeSingle, Impulse: &Conditions{Irradiance: 1000, Temperature: 25}},
		{Index: 1, Shape: ShapeSingle, Impulse: &Conditions{Irradiance: 1000, Temperature: 60}},
	}))

	cool := NewCell(ModelIdeal)
	require.NoError(t, cool.SetupImpulse(1000, 25))
	hot := NewCell(ModelIdeal)
	require.NoError(t, hot.SetupImpulse(1000, 60))
	c1, _, err := cool.IV(0.01)
	require.NoError(t, err)
	c2, _, err := hot.IV(0.01)
	require.NoError(t, err)
	require.Less(t, len(c2), len(c1))

	agg, gmpp, err := s.IV(0.01)
	require.NoError(t, err)
	assert.Len(t, agg, len(c2))
	assert.InDelta(t, 0.2, agg[10].V, 1e-9)
	for _, p := range agg {
		assert.LessOrEqual(t, p.P, gmpp.P)
	}
}

func TestSourceSingleMatchesCell(t *testing.T) {
	s := NewSource(ModelNonideal)
	require.NoError(t, s.SetupImpulse(1000, 25))
	c := NewCell(ModelNonideal)
	require.NoError(t, c.SetupImpulse(1000, 25))

	_, sm, err := s.IV(0.01)
	require.NoError(t, err)
	_, cm, err := c.IV(0.01)
	require.NoError(t, err)
	assert.Equal(t, cm, sm)
}

func TestSourceCycleAdvancesModules(t *testing.T) {
	s := NewSource(ModelNonideal)
	require.NoError(t, s.SetupRegime([]Event{
		{Cycle: 0, Conditions: Conditions{Irradiance: 1000, Temperature: 25}},
		{Cycle: 4, Conditions: Conditions{Irradiance: 600, Temperature: 25}},
	}))
	s.IncrementCycle()
	s.IncrementCycle()
	assert.Equal(t, 2, s.Cycle())
	envs, err := s.Conditions()
	require.NoError(t, err)
	assert.InDelta(t, 800, envs[0].Irradiance, 1e-9)

	s.SetCycle(0)
	envs, err = s.Conditions()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, envs[0].Irradiance)
}

func TestParseModuleShape(t *testing.T) {
	assert.Equal(t, ShapeSingle, ParseModuleShape("1x1"))
	assert.Equal(t, ShapeDouble, ParseModuleShape("1x2"))
	assert.Equal(t, ShapeQuad, ParseModuleShape("2x2"))
	assert.Equal(t, ShapeQuad, ParseModuleShape("1x4"))
	assert.Equal(t, ShapeOct, ParseModuleShape("2x4"))
	assert.Equal(t, ShapeSingle, ParseModuleShape("3x3"))
}

func TestConverter(t *testing.T) {
	c := NewConverter(0, DefaultLoadVoltage)
	c.SetPulseWidth(1.2)
	assert.InDelta(t, 0.5, c.PulseWidth(), 1e-12)
	assert.Equal(t, 1.2, c.VoltageOut())

	c.SetPulseWidth(0)
	assert.InDelta(t, 0.5, c.PulseWidth(), 1e-12)
	assert.Equal(t, 0.0, c.VoltageOut())

	c.SetLoadVoltage(0.3)
	c.SetPulseWidth(0.6)
	assert.InDelta(t, 0.5, c.PulseWidth(), 1e-12)
	assert.Equal(t, 0.3, c.LoadVoltage())
}

func TestConverterFollowsZeroReference(t *testing.T) {
	c := NewConverter(0.5, DefaultLoadVoltage)
	c.SetPulseWidth(0)
	assert.Equal(t, 0.0, c.VoltageOut())

	c.SetPulseWidth(0.3)
	assert.Equal(t, 0.3, c.VoltageOut())
	assert.InDelta(t, -1.0, c.PulseWidth(), 1e-12)
}

func TestDirectionFromDelta(t *testing.T) {
	assert.Equal(t, DirectionUp, DirectionFromDelta(0.01))
	assert.Equal(t, DirectionDown, DirectionFromDelta(-0.01))
	assert.Equal(t, DirectionHold, DirectionFromDelta(0))
}
