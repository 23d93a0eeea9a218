package data

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"mppt-sim/internal/model"
)

// SourceModelFile is the on-disk description of a multi-module array.
//
//	{
//	  "num_modules": 2,
//	  "pv_model": [
//	    {"module_num": 0, "module_type": "1x1", "env_type": "Impulse", "env_regime": "(1000, 25)"},
//	    {"module_num": 1, "module_type": "1x2", "env_type": "Array", "env_regime": [[0, 1000, 25], [50, 400, 30]]}
//	  ]
//	}
type SourceModelFile struct {
	NumModules int             `json:"num_modules"`
	PVModel    []PVModuleEntry `json:"pv_model"`
}

type PVModuleEntry struct {
	ModuleNum  int    `json:"module_num"`
	ModuleType string `json:"module_type"`
	EnvType    string `json:"env_type"`
	// EnvRegime is [[cycle, irradiance, temperature], ...] for "Array" and
	// [irradiance, temperature] or the string "(irradiance, temperature)"
	// for "Impulse".
	EnvRegime json.RawMessage `json:"env_regime"`
}

func LoadSourceModelJSON(path string) ([]model.ModuleSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	specs, err := ParseSourceModelJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// ParseSourceModelJSON decodes a source model file into module specs.
// Only the first num_modules entries are used.
func ParseSourceModelJSON(raw []byte) ([]model.ModuleSpec, error) {
	var f SourceModelFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.NumModules <= 0 {
		return nil, model.NewConfigError("num_modules", "must be positive, got %d", f.NumModules)
	}
	if len(f.PVModel) < f.NumModules {
		return nil, model.NewConfigError("pv_model", "num_modules is %d but only %d modules listed", f.NumModules, len(f.PVModel))
	}

	specs := make([]model.ModuleSpec, 0, f.NumModules)
	for i, m := range f.PVModel[:f.NumModules] {
		spec := model.ModuleSpec{
			Index: i,
			Shape: model.ParseModuleShape(m.ModuleType),
		}
		switch strings.ToLower(m.EnvType) {
		case "array":
			var rows [][]float64
			if err := json.Unmarshal(m.EnvRegime, &rows); err != nil {
				return nil, model.NewConfigError("env_regime", "module %d: %v", m.ModuleNum, err)
			}
			events, err := EventsFromRows(rows)
			if err != nil {
				return nil, fmt.Errorf("module %d: %w", m.ModuleNum, err)
			}
			spec.Regime = events
		case "impulse":
			env, err := parseImpulse(m.EnvRegime)
			if err != nil {
				return nil, fmt.Errorf("module %d: %w", m.ModuleNum, err)
			}
			spec.Impulse = &env
		default:
			return nil, model.NewConfigError("env_type", "module %d: unknown env_type %q", m.ModuleNum, m.EnvType)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseImpulse(raw json.RawMessage) (model.Conditions, error) {
	var pair []float64
	if err := json.Unmarshal(raw, &pair); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return model.Conditions{}, model.NewConfigError("env_regime", "impulse must be [irradiance, temperature]")
		}
		pair, err = parseTuple(s)
		if err != nil {
			return model.Conditions{}, err
		}
	}
	if len(pair) != 2 {
		return model.Conditions{}, model.NewConfigError("env_regime", "impulse needs 2 values, got %d", len(pair))
	}
	return model.Conditions{Irradiance: pair[0], Temperature: pair[1]}, nil
}

// parseTuple reads "(1000, 25)" or "[1000, 25]".
func parseTuple(s string) ([]float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "()[]")
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, model.NewConfigError("env_regime", "bad impulse value %q", p)
		}
		out = append(out, x)
	}
	return out, nil
}

// EventsFromRows converts [cycle, irradiance, temperature(, load)] rows.
func EventsFromRows(rows [][]float64) ([]model.Event, error) {
	events := make([]model.Event, 0, len(rows))
	for i, r := range rows {
		if len(r) != 3 && len(r) != 4 {
			return nil, model.NewConfigError("regime", "row %d has %d values, want 3 or 4", i, len(r))
		}
		if r[0] != float64(int(r[0])) {
			return nil, model.NewConfigError("regime", "row %d cycle %g is not an integer", i, r[0])
		}
		ev := model.Event{
			Cycle:      int(r[0]),
			Conditions: model.Conditions{Irradiance: r[1], Temperature: r[2]},
		}
		if len(r) == 4 {
			ev.Load = r[3]
		}
		events = append(events, ev)
	}
	return events, nil
}

// RowsFromEvents is the inverse of EventsFromRows.
func RowsFromEvents(events []model.Event) [][]float64 {
	rows := make([][]float64, 0, len(events))
	for _, ev := range events {
		row := []float64{float64(ev.Cycle), ev.Irradiance, ev.Temperature}
		if ev.Load != 0 {
			row = append(row, ev.Load)
		}
		rows = append(rows, row)
	}
	return rows
}
