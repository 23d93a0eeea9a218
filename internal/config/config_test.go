package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppt-sim/internal/backtest"
	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const regimeYAML = `
source:
  model: nonideal
  regime:
    - [0, 1000, 25]
    - [20, 400, 35]
mppt:
  algorithm: pando
  stride_mode: fixed
  stride: 0.02
simulation:
  max_cycle: 30
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", regimeYAML)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pando", c.MPPT.Algorithm)
	assert.Equal(t, DefaultSampleRate, c.MPPT.SampleRate)
	assert.Equal(t, model.DefaultLoadVoltage, c.Converter.LoadVoltage)
	assert.Equal(t, 30, c.Simulation.MaxCycle)
	assert.Equal(t, [][]float64{{0, 1000, 25}, {20, 400, 35}}, c.Source.Regime)
}

func TestLoadResolvesModelFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models/pair.json", `{
	  "num_modules": 2,
	  "pv_model": [
	    {"module_num": 0, "module_type": "1x1", "env_type": "Impulse", "env_regime": "(1000, 25)"},
	    {"module_num": 1, "module_type": "1x2", "env_type": "Impulse", "env_regime": [900, 25]}
	  ]
	}`)
	path := writeFile(t, dir, "run.yaml", `
source:
  model_file: models/pair.json
mppt:
  algorithm: ic
`)
	c, err := Load(path)
	require.NoError(t, err)

	run, err := c.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Setup.Source.NumCells())
	assert.InDelta(t, 2.4, run.Setup.Source.MaxVoltage(), 1e-12)
}

func TestLoadMissingModelFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", `
source:
  model_file: nope.json
mppt:
  algorithm: ic
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		c := &Config{
			Source: SourceConfig{Impulse: &ImpulseConfig{Irradiance: 1000, Temperature: 25}},
			MPPT:   MPPTConfig{Algorithm: "pando"},
		}
		c.ApplyDefaults()
		return c
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"no algorithm":      func(c *Config) { c.MPPT.Algorithm = "" },
		"bad algorithm":     func(c *Config) { c.MPPT.Algorithm = "fuzzy" },
		"bad stride mode":   func(c *Config) { c.MPPT.StrideMode = "random" },
		"bad search mode":   func(c *Config) { c.MPPT.SearchMode = "bfgs" },
		"bad model":         func(c *Config) { c.Source.Model = "two-diode" },
		"short v_best":      func(c *Config) { c.MPPT.VBest = []float64{1, 2} },
		"negative cycles":   func(c *Config) { c.Simulation.MaxCycle = -1 },
		"negative iv step":  func(c *Config) { c.Simulation.IVStep = -0.01 },
		"tiny iv step":      func(c *Config) { c.Simulation.IVStep = 1e-6 },
		"no environment":    func(c *Config) { c.Source.Impulse = nil },
		"two environments":  func(c *Config) { c.Source.Regime = [][]float64{{0, 1000, 25}} },
		"unordered regime":  func(c *Config) { c.Source.Impulse = nil; c.Source.Regime = [][]float64{{5, 1000, 25}, {1, 900, 25}} },
		"unloaded file":     func(c *Config) { c.Source.Impulse = nil; c.Source.ModelFile = "x.json" },
		"empty module":      func(c *Config) { c.Source.Impulse = nil; c.Source.Modules = []ModuleConfig{{Shape: "1x2"}} },
		"negative irradian": func(c *Config) { c.Source.Impulse.Irradiance = -1 },
	}
	for name, mutate := range cases {
		c := base()
		mutate(c)
		assert.ErrorIs(t, c.Validate(), model.ErrConfiguration, name)
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestMergeCell(t *testing.T) {
	base := model.DefaultCellParams()
	out := MergeCell(base, CellConfig{Isc: 8, ShuntResistance: 50})
	assert.Equal(t, 8.0, out.RefIsc)
	assert.Equal(t, 50.0, out.ShuntResistance)
	assert.Equal(t, base.RefVoc, out.RefVoc)
	assert.Equal(t, base, MergeCell(base, CellConfig{}))
}

func TestBuildModulesScalesEstimates(t *testing.T) {
	c := &Config{
		Source: SourceConfig{Modules: []ModuleConfig{
			{Shape: "1x2", Impulse: &ImpulseConfig{Irradiance: 1000, Temperature: 25}},
			{Shape: "2x2", Regime: [][]float64{{0, 800, 25}, {10, 600, 30}}},
		}},
		MPPT: MPPTConfig{Algorithm: "passthrough", SearchMode: "newton", VRef: 10},
	}
	c.ApplyDefaults()
	require.NoError(t, c.Validate())

	run, err := c.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 6, run.Setup.Source.NumCells())
	pt, ok := run.Setup.Strategy.(*strategy.Passthrough)
	require.True(t, ok)
	assert.Equal(t, strategy.SearchNewton, pt.Mode())
	// VRef above the array maximum is clamped.
	assert.InDelta(t, 4.8, pt.VRef(), 1e-12)
	assert.InDelta(t, 4.8, run.Setup.Converter.VoltageOut(), 1e-12)
	assert.Nil(t, run.Calibration)
}

func TestBuildCalibrates(t *testing.T) {
	c := &Config{
		Source: SourceConfig{Impulse: &ImpulseConfig{Irradiance: 1000, Temperature: 25}},
		MPPT:   MPPTConfig{Algorithm: "pando", StrideMode: "optimal", Calibrate: true},
	}
	c.ApplyDefaults()
	require.NoError(t, c.Validate())

	run, err := c.Build(nil)
	require.NoError(t, err)
	require.NotNil(t, run.Calibration)
	assert.InDelta(t, 0.47, run.Calibration.VBest.Eval(25), 0.03)
	assert.Len(t, run.Calibration.Points, 9)
}

func TestBuildInstallsCache(t *testing.T) {
	cache := data.NewCurrentCache(model.DefaultCellParams(), 0)
	c := &Config{
		Source:     SourceConfig{Impulse: &ImpulseConfig{Irradiance: 1000, Temperature: 25}, Cache: true},
		MPPT:       MPPTConfig{Algorithm: "oracle"},
		Simulation: SimulationConfig{MaxCycle: 3},
	}
	c.ApplyDefaults()
	run, err := c.Build(cache)
	require.NoError(t, err)

	_, err = backtest.New().Run(context.Background(), run.Setup, run.Options)
	require.NoError(t, err)
	assert.Greater(t, cache.Stats().Hits, uint64(0))

	// Overridden constants bypass the shared cache.
	cache.Clear()
	c.Source.Cell.Isc = 7
	run, err = c.Build(cache)
	require.NoError(t, err)
	_, err = backtest.New().Run(context.Background(), run.Setup, run.Options)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	c, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.CORSAllowedOrigins)
	assert.Equal(t, 20000, c.MaxCycleLimit)
	assert.False(t, c.Production())
}
