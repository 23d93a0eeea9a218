package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

// DefaultSweepTemperatures spans the operating range used when fitting.
var DefaultSweepTemperatures = []float64{0, 10, 20, 25, 30, 40, 50, 60, 70}

// CharacterPoint is one cell IV sweep at fixed conditions.
type CharacterPoint struct {
	Irradiance  float64     `json:"irradiance"`
	Temperature float64     `json:"temperature"`
	MPP         model.Point `json:"mpp"`
	// Isc is the current at 0 V. Voc is the first swept voltage where the
	// current reaches the open-circuit floor, or the end of the sweep.
	Isc float64 `json:"isc"`
	Voc float64 `json:"voc"`
	// FillFactor is Pmpp / (Voc · Isc).
	FillFactor float64 `json:"fill_factor"`
}

// Characterize sweeps one cell of the given model at every combination of
// irradiance and temperature. lookup may be nil.
func Characterize(mt model.ModelType, params model.CellParams, irradiances, temperatures []float64, step float64, lookup model.LookupFunc) ([]CharacterPoint, error) {
	out := make([]CharacterPoint, 0, len(irradiances)*len(temperatures))
	for _, g := range irradiances {
		for _, t := range temperatures {
			cell := model.NewCellWithParams(mt, params)
			cell.SetLookup(lookup)
			if err := cell.SetupImpulse(g, t); err != nil {
				return nil, err
			}
			curve, mpp, err := cell.IV(step)
			if err != nil {
				return nil, fmt.Errorf("sweep %g W/m2 %g C: %w", g, t, err)
			}
			pt := CharacterPoint{
				Irradiance:  g,
				Temperature: t,
				MPP:         mpp,
				Isc:         curve[0].I,
				Voc:         openCircuit(curve),
			}
			if d := pt.Voc * pt.Isc; d > 0 {
				pt.FillFactor = mpp.P / d
			}
			out = append(out, pt)
		}
	}
	return out, nil
}

// openCircuitCurrent is the smallest current the nonideal solver returns.
const openCircuitCurrent = 0.001

func openCircuit(curve model.Curve) float64 {
	for _, p := range curve {
		if p.I <= openCircuitCurrent+1e-12 {
			return p.V
		}
	}
	return curve[len(curve)-1].V
}

// FitQuadratic fits y = a + b·x + c·x² by least squares.
func FitQuadratic(xs, ys []float64) (strategy.Quadratic, error) {
	if len(xs) != len(ys) {
		return strategy.Quadratic{}, fmt.Errorf("fit: %d xs but %d ys", len(xs), len(ys))
	}
	if len(xs) < 3 {
		return strategy.Quadratic{}, fmt.Errorf("fit: need at least 3 points, got %d", len(xs))
	}
	design := mat.NewDense(len(xs), 3, nil)
	for i, x := range xs {
		design.Set(i, 0, 1)
		design.Set(i, 1, x)
		design.Set(i, 2, x*x)
	}
	var beta mat.VecDense
	if err := beta.SolveVec(design, mat.NewVecDense(len(ys), append([]float64(nil), ys...))); err != nil {
		return strategy.Quadratic{}, fmt.Errorf("fit: %w", err)
	}
	return strategy.Quadratic{A: beta.AtVec(0), B: beta.AtVec(1), C: beta.AtVec(2)}, nil
}

// Calibration holds per-cell temperature fits of the maximum power point.
type Calibration struct {
	VBest         strategy.Quadratic `json:"v_best"`
	PowerEstimate strategy.Quadratic `json:"power_estimate"`
	Points        []CharacterPoint   `json:"points"`
}

// Calibrate characterizes a cell at one irradiance across temperatures and
// fits VMPP(T) and PMPP(T).
func Calibrate(mt model.ModelType, params model.CellParams, irradiance float64, temperatures []float64, step float64, lookup model.LookupFunc) (Calibration, error) {
	if len(temperatures) == 0 {
		temperatures = DefaultSweepTemperatures
	}
	pts, err := Characterize(mt, params, []float64{irradiance}, temperatures, step, lookup)
	if err != nil {
		return Calibration{}, err
	}
	ts := make([]float64, len(pts))
	vs := make([]float64, len(pts))
	ps := make([]float64, len(pts))
	for i, p := range pts {
		ts[i] = p.Temperature
		vs[i] = p.MPP.V
		ps[i] = p.MPP.P
	}
	vb, err := FitQuadratic(ts, vs)
	if err != nil {
		return Calibration{}, fmt.Errorf("v_best: %w", err)
	}
	pe, err := FitQuadratic(ts, ps)
	if err != nil {
		return Calibration{}, fmt.Errorf("power_estimate: %w", err)
	}
	return Calibration{VBest: vb, PowerEstimate: pe, Points: pts}, nil
}
