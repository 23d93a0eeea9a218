package model

import (
	"fmt"
	"math"
	"strings"
)

// ModelType selects the device equation a Cell evaluates.
type ModelType int

const (
	// ModelNonideal is the single-diode model with series and shunt
	// resistance, solved for current by incremental search.
	ModelNonideal ModelType = iota
	// ModelIdeal drops the resistive terms and is evaluated in closed form.
	// Current goes negative past open-circuit voltage.
	ModelIdeal
	// ModelBenghanem is the explicit empirical model of Benghanem and Alamri.
	ModelBenghanem
)

func (m ModelType) String() string {
	switch m {
	case ModelIdeal:
		return "ideal"
	case ModelBenghanem:
		return "benghanem"
	default:
		return "nonideal"
	}
}

// ParseModelType maps a configuration name to a ModelType.
// Unknown names fall back to ModelNonideal and also return ErrConfiguration
// so config validation can reject them.
func ParseModelType(name string) (ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "nonideal":
		return ModelNonideal, nil
	case "ideal":
		return ModelIdeal, nil
	case "benghanem":
		return ModelBenghanem, nil
	default:
		return ModelNonideal, configErr("model", "unknown cell model %q", name)
	}
}

// CellParams are the device constants of a single reference cell.
type CellParams struct {
	Boltzmann float64 // J/K
	Charge    float64 // C

	RefTemperatureK float64
	RefIrradiance   float64
	RefVoc          float64
	RefIsc          float64

	SeriesResistance float64
	ShuntResistance  float64

	// Temperature coefficients of open-circuit voltage (V/K) and of
	// short-circuit current (fraction/K).
	VocTempCoeff float64
	IscTempCoeff float64

	// SolverStep is the current increment of the nonideal search (A).
	SolverStep float64
	// MaxCurrent bounds the nonideal search.
	MaxCurrent float64

	// MaxVoltage is the rated upper limit of the IV sweep (V).
	MaxVoltage float64
}

// DefaultCellParams returns constants for a Sunpower Bin Le1 cell.
func DefaultCellParams() CellParams {
	return CellParams{
		Boltzmann:        1.381e-23,
		Charge:           1.602e-19,
		RefTemperatureK:  25 + kelvinOffset,
		RefIrradiance:    1000,
		RefVoc:           0.721,
		RefIsc:           6.15,
		SeriesResistance: 0.032,
		ShuntResistance:  36.1,
		VocTempCoeff:     -2.2e-3,
		IscTempCoeff:     6e-4,
		SolverStep:       0.001,
		MaxCurrent:       100,
		MaxVoltage:       0.8,
	}
}

const (
	kelvinOffset = 273.15

	// darkIrradiance stands in for zero irradiance, which makes ln(G) diverge.
	darkIrradiance = 0.001

	benghanemMaxVoltage = 0.817
	benghanemMaxCurrent = -100.0

	// sweepTolerance absorbs float drift in n·step near the sweep's upper bound.
	sweepTolerance = 1e-9
)

// MinIVStep is the finest IV sweep step accepted. It caps a cell sweep at
// about MaxVoltage/MinIVStep points.
const MinIVStep = 1e-4

// LookupFunc returns a precomputed current for (model, v, env), or false on miss.
type LookupFunc func(m ModelType, v float64, env Conditions) (float64, bool)

// OperatingPoint is a cell or source evaluated at one voltage.
type OperatingPoint struct {
	V   float64
	I   float64
	Env Conditions
}

func (p OperatingPoint) Power() float64 { return p.V * p.I }

// Point is one sample of an IV curve.
type Point struct {
	V float64 `json:"v"`
	I float64 `json:"i"`
	P float64 `json:"p"`
}

// Curve is an IV sweep in ascending voltage.
type Curve []Point

type setupMode int

const (
	setupNone setupMode = iota
	setupImpulse
	setupRegime
)

// Cell models one photovoltaic cell under an impulse (constant conditions)
// or a regime (Timeline).
type Cell struct {
	model  ModelType
	params CellParams

	mode     setupMode
	impulse  Conditions
	timeline *Timeline
	cycle    int

	lookup LookupFunc
}

func NewCell(m ModelType) *Cell {
	return NewCellWithParams(m, DefaultCellParams())
}

func NewCellWithParams(m ModelType, p CellParams) *Cell {
	return &Cell{model: m, params: p}
}

func (c *Cell) ModelType() ModelType { return c.model }
func (c *Cell) Params() CellParams   { return c.params }

// SetLookup installs a precomputed-current lookup consulted before solving.
// Only the nonideal model uses it.
func (c *Cell) SetLookup(fn LookupFunc) { c.lookup = fn }

// SetupImpulse holds the cell at constant conditions. The cycle resets to 0.
func (c *Cell) SetupImpulse(irradiance, temperature float64) error {
	c.mode = setupNone
	c.timeline = nil
	c.cycle = 0
	if math.IsNaN(irradiance) || math.IsInf(irradiance, 0) || irradiance < 0 {
		return configErr("impulse", "invalid irradiance %g", irradiance)
	}
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return configErr("impulse", "invalid temperature %g", temperature)
	}
	c.impulse = Conditions{Irradiance: irradiance, Temperature: temperature}
	c.mode = setupImpulse
	return nil
}

// SetupRegime drives the cell from a sparse event list. The cycle resets to 0.
func (c *Cell) SetupRegime(events []Event) error {
	c.mode = setupNone
	c.timeline = nil
	c.cycle = 0
	tl, err := NewTimeline(events)
	if err != nil {
		return err
	}
	c.timeline = tl
	c.mode = setupRegime
	return nil
}

// Timeline returns the regime timeline, or nil in impulse mode.
func (c *Cell) Timeline() *Timeline { return c.timeline }

func (c *Cell) Cycle() int         { return c.cycle }
func (c *Cell) SetCycle(cycle int) { c.cycle = cycle }

func (c *Cell) IncrementCycle() int {
	c.cycle++
	return c.cycle
}

// Conditions returns the environment for the current cycle.
func (c *Cell) Conditions() (Conditions, error) {
	switch c.mode {
	case setupImpulse:
		return c.impulse, nil
	case setupRegime:
		return c.timeline.Resolve(c.cycle)
	default:
		return Conditions{}, configErr("cell", "not set up")
	}
}

// Iterate evaluates the cell at v under the current cycle's conditions.
// It does not advance the cycle.
func (c *Cell) Iterate(v float64) (OperatingPoint, error) {
	env, err := c.Conditions()
	if err != nil {
		return OperatingPoint{}, err
	}
	return OperatingPoint{V: v, I: c.Model(v, env), Env: env}, nil
}

// Model returns the cell current at voltage v under env.
func (c *Cell) Model(v float64, env Conditions) float64 {
	if env.Irradiance == 0 {
		env.Irradiance = darkIrradiance
	}
	switch c.model {
	case ModelIdeal:
		return c.ideal(v, env)
	case ModelBenghanem:
		return c.benghanem(v, env)
	default:
		if c.lookup != nil {
			if i, ok := c.lookup(c.model, v, env); ok {
				return i
			}
		}
		return c.nonideal(v, env)
	}
}

// diodeTerms returns photocurrent, saturation current and cell temperature (K).
func (c *Cell) diodeTerms(env Conditions) (ipv, i0, tc float64) {
	p := c.params
	tc = env.Temperature + kelvinOffset
	dt := tc - p.RefTemperatureK
	isc := env.Irradiance / p.RefIrradiance * p.RefIsc * (1 + p.IscTempCoeff*dt)
	voc := p.RefVoc + p.VocTempCoeff*dt + p.Boltzmann*tc/p.Charge*math.Log(env.Irradiance/p.RefIrradiance)
	i0 = math.Exp(math.Log(isc) - p.Charge*voc/(p.Boltzmann*tc))
	return isc, i0, tc
}

// nonideal solves I = Ipv - I0(exp(q(V+I·Rs)/kT) - 1) - (V+I·Rs)/Rsh by
// stepping I up from zero until the squared residual stops decreasing.
// The step that first fails to improve is returned.
func (c *Cell) nonideal(v float64, env Conditions) float64 {
	p := c.params
	ipv, i0, tc := c.diodeTerms(env)
	qkt := p.Charge / (p.Boltzmann * tc)

	residual := func(i float64) float64 {
		vd := v + i*p.SeriesResistance
		r := i - (ipv - i0*(math.Exp(qkt*vd)-1) - vd/p.ShuntResistance)
		return r * r
	}

	step := p.SolverStep
	if step <= 0 {
		step = 0.001
	}
	maxSteps := int(p.MaxCurrent / step)
	if maxSteps < 1 {
		maxSteps = 1
	}

	prev := residual(0)
	i := 0.0
	for n := 1; n <= maxSteps; n++ {
		i = float64(n) * step
		r := residual(i)
		if r >= prev {
			return i
		}
		prev = r
	}
	return i
}

func (c *Cell) ideal(v float64, env Conditions) float64 {
	p := c.params
	ipv, i0, tc := c.diodeTerms(env)
	return ipv - i0*(math.Exp(p.Charge*v/(p.Boltzmann*tc))-1)
}

// benghanem evaluates I = Isc(1 - C1(exp(V/(C2·Voc)) - 1)).
func (c *Cell) benghanem(v float64, env Conditions) float64 {
	p := c.params
	dt := env.Temperature - (p.RefTemperatureK - kelvinOffset)
	voc := p.RefVoc + p.VocTempCoeff*dt
	isc := (p.RefIsc + 0.06e-3*dt*p.RefIsc) * env.Irradiance / p.RefIrradiance

	c2 := (benghanemMaxVoltage/voc - 1) / math.Log(1-benghanemMaxCurrent/isc)
	c1 := (1 - benghanemMaxCurrent/isc) * math.Exp(-benghanemMaxVoltage/(c2*voc))
	return isc * (1 - c1*(math.Exp(v/(c2*voc))-1))
}

// IV sweeps the cell from 0 to MaxVoltage in increments of step under the
// current cycle's conditions. The sweep stops early, without recording the
// point, once current goes negative. The returned Point is the first
// maximum-power sample.
func (c *Cell) IV(step float64) (Curve, Point, error) {
	if math.IsNaN(step) || step < MinIVStep {
		return nil, Point{}, configErr("iv_step", "must be at least %g, got %g", MinIVStep, step)
	}
	env, err := c.Conditions()
	if err != nil {
		return nil, Point{}, err
	}
	return sweep(step, c.params.MaxVoltage, func(v float64) float64 { return c.Model(v, env) })
}

func sweep(step, maxV float64, current func(v float64) float64) (Curve, Point, error) {
	curve := make(Curve, 0, int(maxV/step)+1)
	var mpp Point
	for n := 0; ; n++ {
		v := float64(n) * step
		if v > maxV+sweepTolerance {
			break
		}
		i := current(v)
		if i < 0 {
			break
		}
		pt := Point{V: v, I: i, P: v * i}
		curve = append(curve, pt)
		if pt.P > mpp.P {
			mpp = pt
		}
	}
	if len(curve) == 0 {
		return nil, Point{}, fmt.Errorf("iv sweep produced no points")
	}
	return curve, mpp, nil
}
