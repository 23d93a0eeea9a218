package model

import (
	"fmt"
	"math"
	"strings"
)

// ModuleShape is the number of series cells in a module.
type ModuleShape int

const (
	ShapeSingle ModuleShape = 1
	ShapeDouble ModuleShape = 2
	ShapeQuad   ModuleShape = 4
	ShapeOct    ModuleShape = 8
)

// ParseModuleShape maps a layout name ("1x1", "1x2", "2x2", "1x4", "2x4") to
// its cell count. Unrecognized layouts are treated as a single cell.
func ParseModuleShape(name string) ModuleShape {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "1x2":
		return ShapeDouble
	case "2x2", "1x4":
		return ShapeQuad
	case "2x4":
		return ShapeOct
	default:
		return ShapeSingle
	}
}

func (s ModuleShape) String() string {
	switch s {
	case ShapeDouble:
		return "1x2"
	case ShapeQuad:
		return "2x2"
	case ShapeOct:
		return "2x4"
	default:
		return "1x1"
	}
}

// Module is one series string of identical cells sharing an environment.
type Module struct {
	Index int
	Shape ModuleShape
	Cell  *Cell
}

// ModuleSpec describes a module before construction. Exactly one of Impulse
// or Regime must be set.
type ModuleSpec struct {
	Index   int
	Shape   ModuleShape
	Impulse *Conditions
	Regime  []Event
}

// Source aggregates modules into one array. Module voltages add; the array
// current is the smallest module current. Bypass diodes and mismatch
// recombination are not modeled.
type Source struct {
	model  ModelType
	params CellParams
	lookup LookupFunc

	modules []Module
	cycle   int
}

func NewSource(m ModelType) *Source {
	return NewSourceWithParams(m, DefaultCellParams())
}

func NewSourceWithParams(m ModelType, p CellParams) *Source {
	return &Source{model: m, params: p}
}

func (s *Source) ModelType() ModelType { return s.model }

// SetLookup installs a lookup on current and future cells.
func (s *Source) SetLookup(fn LookupFunc) {
	s.lookup = fn
	for _, m := range s.modules {
		m.Cell.SetLookup(fn)
	}
}

func (s *Source) newCell() *Cell {
	c := NewCellWithParams(s.model, s.params)
	c.SetLookup(s.lookup)
	return c
}

// SetupImpulse configures a single-cell source at constant conditions.
func (s *Source) SetupImpulse(irradiance, temperature float64) error {
	return s.SetupModules([]ModuleSpec{{
		Shape:   ShapeSingle,
		Impulse: &Conditions{Irradiance: irradiance, Temperature: temperature},
	}})
}

// SetupRegime configures a single-cell source driven by events.
func (s *Source) SetupRegime(events []Event) error {
	return s.SetupModules([]ModuleSpec{{Shape: ShapeSingle, Regime: events}})
}

// SetupModules replaces the module list. If any module fails to set up the
// source is left with no modules and the error is returned.
func (s *Source) SetupModules(specs []ModuleSpec) error {
	s.modules = nil
	s.cycle = 0
	if len(specs) == 0 {
		return configErr("modules", "source has no modules")
	}
	mods := make([]Module, 0, len(specs))
	for i, spec := range specs {
		if spec.Shape <= 0 {
			spec.Shape = ShapeSingle
		}
		cell := s.newCell()
		var err error
		switch {
		case spec.Impulse != nil && spec.Regime != nil:
			err = configErr("modules", "module %d sets both impulse and regime", i)
		case spec.Impulse != nil:
			err = cell.SetupImpulse(spec.Impulse.Irradiance, spec.Impulse.Temperature)
		case spec.Regime != nil:
			err = cell.SetupRegime(spec.Regime)
		default:
			err = configErr("modules", "module %d has no environment", i)
		}
		if err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
		mods = append(mods, Module{Index: spec.Index, Shape: spec.Shape, Cell: cell})
	}
	s.modules = mods
	return nil
}

// Modules returns the configured modules in order.
func (s *Source) Modules() []Module {
	out := make([]Module, len(s.modules))
	copy(out, s.modules)
	return out
}

// NumCells is the total series cell count across modules.
func (s *Source) NumCells() int {
	n := 0
	for _, m := range s.modules {
		n += int(m.Shape)
	}
	return n
}

// MaxVoltage is the rated array voltage, the per-cell maximum times NumCells.
func (s *Source) MaxVoltage() float64 {
	return s.params.MaxVoltage * float64(s.NumCells())
}

// Iterate applies the per-cell voltage v to every module and aggregates.
// The returned environment is that of the last module.
func (s *Source) Iterate(v float64) (OperatingPoint, error) {
	if len(s.modules) == 0 {
		return OperatingPoint{}, configErr("source", "not set up")
	}
	out := OperatingPoint{I: math.Inf(1)}
	for _, m := range s.modules {
		op, err := m.Cell.Iterate(v)
		if err != nil {
			return OperatingPoint{}, fmt.Errorf("module %d: %w", m.Index, err)
		}
		out.V += op.V * float64(m.Shape)
		if op.I < out.I {
			out.I = op.I
		}
		out.Env = op.Env
	}
	return out, nil
}

// IV sweeps every module at the same step and combines the curves point by
// point. Curves that end early truncate the aggregate to the shortest.
// The returned Point is the first global maximum.
func (s *Source) IV(step float64) (Curve, Point, error) {
	if len(s.modules) == 0 {
		return nil, Point{}, configErr("source", "not set up")
	}
	curves := make([]Curve, 0, len(s.modules))
	n := math.MaxInt
	for _, m := range s.modules {
		c, _, err := m.Cell.IV(step)
		if err != nil {
			return nil, Point{}, fmt.Errorf("module %d: %w", m.Index, err)
		}
		curves = append(curves, c)
		if len(c) < n {
			n = len(c)
		}
	}

	agg := make(Curve, n)
	var gmpp Point
	for k := 0; k < n; k++ {
		pt := Point{I: math.Inf(1)}
		for j, m := range s.modules {
			cp := curves[j][k]
			pt.V += cp.V * float64(m.Shape)
			if cp.I < pt.I {
				pt.I = cp.I
			}
		}
		pt.P = pt.V * pt.I
		agg[k] = pt
		if pt.P > gmpp.P {
			gmpp = pt
		}
	}
	return agg, gmpp, nil
}

// Conditions returns each module's environment for the current cycle.
func (s *Source) Conditions() ([]Conditions, error) {
	out := make([]Conditions, 0, len(s.modules))
	for _, m := range s.modules {
		env, err := m.Cell.Conditions()
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (s *Source) Cycle() int { return s.cycle }

func (s *Source) SetCycle(cycle int) {
	s.cycle = cycle
	for _, m := range s.modules {
		m.Cell.SetCycle(cycle)
	}
}

func (s *Source) IncrementCycle() int {
	for _, m := range s.modules {
		m.Cell.IncrementCycle()
	}
	s.cycle++
	return s.cycle
}
