package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mppt-sim/internal/analysis"
	"mppt-sim/internal/backtest"
	"mppt-sim/internal/config"
	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "simulate":
		err = cmdSimulate(ctx, os.Args[2:])
	case "compare":
		err = cmdCompare(ctx, os.Args[2:])
	case "characterize":
		err = cmdCharacterize(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli simulate --config examples/configs/pando_impulse.yaml --out results/ledger.csv")
	fmt.Println("  cli compare --config examples/configs/ic_regime.yaml --algorithms pando,ic,fc,passthrough,oracle")
	fmt.Println("  cli characterize --model nonideal --irradiance 1000,800 --temps 0,25,50 [--fit]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - simulate writes one CSV row per control cycle with direction=UP/DOWN/HOLD")
	fmt.Println("  - compare reruns the config once per algorithm and ranks by tracking efficiency")
	fmt.Println("  - characterize sweeps the cell model and can fit v_best/power_estimate")
}

func commonFlags(fs *flag.FlagSet) (cfgPath *string, maxCycle *int, verbose *bool) {
	cfgPath = fs.String("config", "", "Path to YAML config")
	maxCycle = fs.Int("max-cycle", 0, "Optional: override simulation.max_cycle (0=config)")
	verbose = fs.Bool("v", false, "Debug logging")
	return
}

func loadConfig(path string, maxCycle int, verbose bool) (*config.Config, error) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if maxCycle > 0 {
		cfg.Simulation.MaxCycle = maxCycle
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newCache(cfg *config.Config) *data.CurrentCache {
	if !cfg.Source.Cache {
		return nil
	}
	return data.NewCurrentCache(model.DefaultCellParams(), 0)
}

func cmdSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	cfgPath, maxCycle, verbose := commonFlags(fs)
	outPath := fs.String("out", "results/ledger.csv", "Output CSV path")
	stream := fs.Bool("stream", false, "Write rows as cycles complete instead of after the run")
	pace := fs.Duration("pace", 0, "Optional: wall time between cycles, e.g. 50ms")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *maxCycle, *verbose)
	if err != nil {
		return err
	}
	run, err := cfg.Build(newCache(cfg))
	if err != nil {
		return err
	}
	run.Options.Pace = *pace

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return err
	}
	if *stream {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		run.Options.Sink = backtest.NewCSVSink(f)
	}

	res, err := backtest.New().Run(ctx, run.Setup, run.Options)
	if err != nil {
		return err
	}
	if !*stream {
		if err := backtest.WriteLedgerCSV(*outPath, res.Ledger); err != nil {
			return err
		}
	}

	sum := analysis.Summarize(res, run.Options.DiffThreshold)
	if run.Calibration != nil {
		fmt.Printf("Calibrated v_best=%+v power_estimate=%+v\n", run.Calibration.VBest, run.Calibration.PowerEstimate)
	}
	fmt.Printf("Wrote %d rows to %s\n", len(res.Ledger), *outPath)
	fmt.Printf("Strategy=%s Efficiency=%.4f PDiffA=%.4f Settle=%d Reversals=%d\n",
		sum.Strategy, sum.Efficiency, sum.OffPeakFraction, sum.SettleCycle, sum.Reversals)
	return nil
}

func cmdCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	cfgPath, maxCycle, verbose := commonFlags(fs)
	algorithms := fs.String("algorithms", defaultAlgorithms(), "Comma-separated MPPT algorithms")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *maxCycle, *verbose)
	if err != nil {
		return err
	}
	cache := newCache(cfg)

	var results []*backtest.Result
	for _, name := range splitList(*algorithms) {
		variant := *cfg
		variant.MPPT.Algorithm = name
		if err := variant.Validate(); err != nil {
			return err
		}
		run, err := variant.Build(cache)
		if err != nil {
			return err
		}
		res, err := backtest.New().Run(ctx, run.Setup, run.Options)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		results = append(results, res)
	}

	fmt.Printf("%-4s %-26s %-8s %-10s %-8s %-8s %-9s\n", "rank", "strategy", "cycles", "efficiency", "p_diff_a", "settle", "reversals")
	for _, r := range analysis.RankByEfficiency(results, cfg.Simulation.DiffThreshold) {
		fmt.Printf("%-4d %-26s %-8d %-10.4f %-8.4f %-8d %-9d\n",
			r.Rank, r.Strategy, r.Cycles, r.Efficiency, r.OffPeakFraction, r.SettleCycle, r.Reversals)
	}
	if cache != nil {
		st := cache.Stats()
		log.Debug().Int("entries", st.Entries).Uint64("hits", st.Hits).Uint64("misses", st.Misses).Msg("current cache")
	}
	return nil
}

func cmdCharacterize(args []string) error {
	fs := flag.NewFlagSet("characterize", flag.ExitOnError)
	modelName := fs.String("model", "nonideal", "Cell model: nonideal, ideal or benghanem")
	irr := fs.String("irradiance", "1000", "Comma-separated irradiance values (W/m2)")
	temps := fs.String("temps", "", "Comma-separated temperatures (C), default sweep range")
	step := fs.Float64("step", backtest.DefaultIVStep, "IV sweep step (V)")
	fit := fs.Bool("fit", false, "Fit v_best and power_estimate quadratics (single irradiance)")
	_ = fs.Parse(args)

	mt, err := model.ParseModelType(*modelName)
	if err != nil {
		return err
	}
	irradiance, err := parseFloats(*irr)
	if err != nil {
		return err
	}
	temperatures := analysis.DefaultSweepTemperatures
	if *temps != "" {
		if temperatures, err = parseFloats(*temps); err != nil {
			return err
		}
	}

	var points []analysis.CharacterPoint
	var cal *analysis.Calibration
	if *fit {
		if len(irradiance) != 1 {
			return fmt.Errorf("--fit needs exactly one irradiance")
		}
		c, err := analysis.Calibrate(mt, model.DefaultCellParams(), irradiance[0], temperatures, *step, nil)
		if err != nil {
			return err
		}
		points, cal = c.Points, &c
	} else {
		points, err = analysis.Characterize(mt, model.DefaultCellParams(), irradiance, temperatures, *step, nil)
		if err != nil {
			return err
		}
	}

	fmt.Printf("%-8s %-7s %-8s %-8s %-8s %-8s %-8s\n", "g", "t", "v_mpp", "p_mpp", "isc", "voc", "ff")
	for _, p := range points {
		fmt.Printf("%-8.0f %-7.1f %-8.4f %-8.4f %-8.4f %-8.4f %-8.4f\n",
			p.Irradiance, p.Temperature, p.MPP.V, p.MPP.P, p.Isc, p.Voc, p.FillFactor)
	}
	if cal != nil {
		fmt.Printf("\nv_best:         [%g, %g, %g]\n", cal.VBest.A, cal.VBest.B, cal.VBest.C)
		fmt.Printf("power_estimate: [%g, %g, %g]\n", cal.PowerEstimate.A, cal.PowerEstimate.B, cal.PowerEstimate.C)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range splitList(s) {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p)
		}
		out = append(out, x)
	}
	return out, nil
}

func defaultAlgorithms() string {
	names := make([]string, len(strategy.Kinds))
	for i, k := range strategy.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ",")
}
