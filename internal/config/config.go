package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

// Config is the on-disk run configuration shape (YAML). The same shape is
// accepted as JSON by the API.
type Config struct {
	Source     SourceConfig     `yaml:"source" json:"source"`
	MPPT       MPPTConfig       `yaml:"mppt" json:"mppt"`
	Converter  ConverterConfig  `yaml:"converter" json:"converter"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
}

// SourceConfig describes the array. Exactly one of Impulse, Regime, Modules
// or ModelFile is used; Modules overrides ModelFile when both are set.
type SourceConfig struct {
	Model string `yaml:"model" json:"model"`
	// Optional: load modules from a JSON source model file.
	// Relative paths are resolved against the config file directory.
	ModelFile string         `yaml:"model_file" json:"-"`
	Impulse   *ImpulseConfig `yaml:"impulse" json:"impulse,omitempty"`
	Regime    [][]float64    `yaml:"regime" json:"regime,omitempty"`
	Modules   []ModuleConfig `yaml:"modules" json:"modules,omitempty"`
	Cell      CellConfig     `yaml:"cell" json:"cell"`
	// Cache routes nonideal solves through a shared current cache.
	Cache bool `yaml:"cache" json:"cache"`

	fileModules []model.ModuleSpec
}

type ImpulseConfig struct {
	Irradiance  float64 `yaml:"irradiance" json:"irradiance"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

type ModuleConfig struct {
	Shape   string         `yaml:"shape" json:"shape"`
	Impulse *ImpulseConfig `yaml:"impulse" json:"impulse,omitempty"`
	Regime  [][]float64    `yaml:"regime" json:"regime,omitempty"`
}

// CellConfig overrides device constants. Zero fields keep the defaults.
type CellConfig struct {
	Voc              float64 `yaml:"voc" json:"voc,omitempty"`
	Isc              float64 `yaml:"isc" json:"isc,omitempty"`
	SeriesResistance float64 `yaml:"series_resistance" json:"series_resistance,omitempty"`
	ShuntResistance  float64 `yaml:"shunt_resistance" json:"shunt_resistance,omitempty"`
	VocTempCoeff     float64 `yaml:"voc_temp_coeff" json:"voc_temp_coeff,omitempty"`
	IscTempCoeff     float64 `yaml:"isc_temp_coeff" json:"isc_temp_coeff,omitempty"`
	MaxVoltage       float64 `yaml:"max_voltage" json:"max_voltage,omitempty"`
}

type MPPTConfig struct {
	Algorithm  string  `yaml:"algorithm" json:"algorithm"`
	StrideMode string  `yaml:"stride_mode" json:"stride_mode,omitempty"`
	SearchMode string  `yaml:"search_mode" json:"search_mode,omitempty"`
	VRef       float64 `yaml:"v_ref" json:"v_ref"`
	Stride     float64 `yaml:"stride" json:"stride,omitempty"`
	SampleRate int     `yaml:"sample_rate" json:"sample_rate,omitempty"`
	// Per-cell quadratic coefficients [a, b, c] in temperature.
	VBest         []float64 `yaml:"v_best" json:"v_best,omitempty"`
	PowerEstimate []float64 `yaml:"power_estimate" json:"power_estimate,omitempty"`
	// Calibrate fits VBest and PowerEstimate to the configured cell model
	// before the run instead of using the built-in constants.
	Calibrate bool `yaml:"calibrate" json:"calibrate"`
}

type ConverterConfig struct {
	LoadVoltage float64 `yaml:"load_voltage" json:"load_voltage,omitempty"`
}

type SimulationConfig struct {
	MaxCycle      int     `yaml:"max_cycle" json:"max_cycle"`
	IVStep        float64 `yaml:"iv_step" json:"iv_step,omitempty"`
	RecordCurve   bool    `yaml:"record_curve" json:"record_curve"`
	DiffThreshold float64 `yaml:"diff_threshold" json:"diff_threshold,omitempty"`
}

const (
	DefaultMaxCycle   = 200
	DefaultStride     = 0.01
	DefaultSampleRate = 1
)

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the config and any model file it names, but does not
// apply defaults or validate.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.Source.ModelFile != "" {
		if err := c.Source.LoadModelFile(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// LoadModelFile reads ModelFile. Relative paths are tried against baseDir
// first and then the working directory.
func (s *SourceConfig) LoadModelFile(baseDir string) error {
	path := s.ModelFile
	if !filepath.IsAbs(path) && baseDir != "" {
		cand := filepath.Join(baseDir, path)
		if _, err := os.Stat(cand); err == nil {
			path = cand
		}
	}
	specs, err := data.LoadSourceModelJSON(path)
	if err != nil {
		return fmt.Errorf("model_file: %w", err)
	}
	s.fileModules = specs
	return nil
}

// ApplyDefaults fills zero fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.MPPT.Stride == 0 {
		c.MPPT.Stride = DefaultStride
	}
	if c.MPPT.SampleRate == 0 {
		c.MPPT.SampleRate = DefaultSampleRate
	}
	if c.Converter.LoadVoltage == 0 {
		c.Converter.LoadVoltage = model.DefaultLoadVoltage
	}
	if c.Simulation.MaxCycle == 0 {
		c.Simulation.MaxCycle = DefaultMaxCycle
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.MPPT.Algorithm == "" {
		return model.NewConfigError("mppt.algorithm", "is required")
	}
	if _, err := strategy.ParseKind(c.MPPT.Algorithm); err != nil {
		return err
	}
	if _, err := strategy.ParseStrideMode(c.MPPT.StrideMode); err != nil {
		return err
	}
	if _, err := strategy.ParseSearchMode(c.MPPT.SearchMode); err != nil {
		return err
	}
	if _, err := model.ParseModelType(c.Source.Model); err != nil {
		return err
	}
	if err := checkQuadratic("mppt.v_best", c.MPPT.VBest); err != nil {
		return err
	}
	if err := checkQuadratic("mppt.power_estimate", c.MPPT.PowerEstimate); err != nil {
		return err
	}
	if c.Simulation.MaxCycle <= 0 {
		return model.NewConfigError("simulation.max_cycle", "must be positive, got %d", c.Simulation.MaxCycle)
	}
	if c.Simulation.IVStep < 0 {
		return model.NewConfigError("simulation.iv_step", "must not be negative")
	}
	if c.Simulation.IVStep > 0 && c.Simulation.IVStep < model.MinIVStep {
		return model.NewConfigError("simulation.iv_step", "must be at least %g, got %g", model.MinIVStep, c.Simulation.IVStep)
	}
	if c.Converter.LoadVoltage < 0 {
		return model.NewConfigError("converter.load_voltage", "must not be negative")
	}

	// Validate the source by building it.
	if _, err := c.Source.Build(nil); err != nil {
		return fmt.Errorf("source config invalid: %w", err)
	}
	return nil
}

func checkQuadratic(field string, coeffs []float64) error {
	if len(coeffs) != 0 && len(coeffs) != 3 {
		return model.NewConfigError(field, "needs 3 coefficients, got %d", len(coeffs))
	}
	return nil
}

// CellParams returns the default cell constants with overrides applied.
func (s SourceConfig) CellParams() model.CellParams {
	return MergeCell(model.DefaultCellParams(), s.Cell)
}

// MergeCell overlays non-zero fields from override onto base.
func MergeCell(base model.CellParams, override CellConfig) model.CellParams {
	out := base
	if override.Voc != 0 {
		out.RefVoc = override.Voc
	}
	if override.Isc != 0 {
		out.RefIsc = override.Isc
	}
	if override.SeriesResistance != 0 {
		out.SeriesResistance = override.SeriesResistance
	}
	if override.ShuntResistance != 0 {
		out.ShuntResistance = override.ShuntResistance
	}
	if override.VocTempCoeff != 0 {
		out.VocTempCoeff = override.VocTempCoeff
	}
	if override.IscTempCoeff != 0 {
		out.IscTempCoeff = override.IscTempCoeff
	}
	if override.MaxVoltage != 0 {
		out.MaxVoltage = override.MaxVoltage
	}
	return out
}

// ModuleSpecs resolves the configured environment into module specs.
func (s SourceConfig) ModuleSpecs() ([]model.ModuleSpec, error) {
	set := 0
	for _, b := range []bool{s.Impulse != nil, len(s.Regime) > 0, len(s.Modules) > 0 || s.fileModules != nil} {
		if b {
			set++
		}
	}
	if set == 0 {
		if s.ModelFile != "" {
			return nil, model.NewConfigError("source.model_file", "%q was not loaded", s.ModelFile)
		}
		return nil, model.NewConfigError("source", "one of impulse, regime, modules or model_file is required")
	}
	if set > 1 {
		return nil, model.NewConfigError("source", "impulse, regime and modules are mutually exclusive")
	}

	switch {
	case s.Impulse != nil:
		return []model.ModuleSpec{{
			Shape:   model.ShapeSingle,
			Impulse: &model.Conditions{Irradiance: s.Impulse.Irradiance, Temperature: s.Impulse.Temperature},
		}}, nil
	case len(s.Regime) > 0:
		events, err := data.EventsFromRows(s.Regime)
		if err != nil {
			return nil, err
		}
		return []model.ModuleSpec{{Shape: model.ShapeSingle, Regime: events}}, nil
	case len(s.Modules) > 0:
		specs := make([]model.ModuleSpec, 0, len(s.Modules))
		for i, m := range s.Modules {
			spec := model.ModuleSpec{Index: i, Shape: model.ParseModuleShape(m.Shape)}
			if m.Impulse != nil {
				spec.Impulse = &model.Conditions{Irradiance: m.Impulse.Irradiance, Temperature: m.Impulse.Temperature}
			}
			if len(m.Regime) > 0 {
				events, err := data.EventsFromRows(m.Regime)
				if err != nil {
					return nil, fmt.Errorf("module %d: %w", i, err)
				}
				spec.Regime = events
			}
			specs = append(specs, spec)
		}
		return specs, nil
	default:
		return s.fileModules, nil
	}
}

// Build constructs the configured source. A non-nil cache is installed as
// the source's current lookup when Cache is set and no cell constants are
// overridden, since the cache solves with default constants.
func (s SourceConfig) Build(cache *data.CurrentCache) (*model.Source, error) {
	mt, err := model.ParseModelType(s.Model)
	if err != nil {
		return nil, err
	}
	specs, err := s.ModuleSpecs()
	if err != nil {
		return nil, err
	}
	src := model.NewSourceWithParams(mt, s.CellParams())
	if s.Cache && cache != nil && s.Cell == (CellConfig{}) {
		src.SetLookup(cache.Lookup())
	}
	if err := src.SetupModules(specs); err != nil {
		return nil, err
	}
	return src, nil
}
