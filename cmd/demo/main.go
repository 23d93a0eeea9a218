package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	"mppt-sim/internal/backtest"
	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

// Demo:
// - Build a single-cell source under constant conditions
// - Instantiate a tracker and a converter
// - Run a few cycles and print each one as it completes
func main() {
	modelName := flag.String("model", "nonideal", "Cell model: nonideal, ideal or benghanem")
	algorithm := flag.String("algorithm", "pando", "MPPT algorithm")
	irradiance := flag.Float64("g", 1000, "Irradiance (W/m2)")
	temperature := flag.Float64("t", 25, "Cell temperature (C)")
	n := flag.Int("n", 30, "Number of cycles to simulate")
	outCSV := flag.String("out", "", "Optional path to write ledger CSV (e.g. results/ledger.csv)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	mt, err := model.ParseModelType(*modelName)
	if err != nil {
		panic(err)
	}
	src := model.NewSource(mt)
	if err := src.SetupImpulse(*irradiance, *temperature); err != nil {
		panic(err)
	}

	kind, err := strategy.ParseKind(*algorithm)
	if err != nil {
		panic(err)
	}
	strat, err := strategy.New(kind, src.MaxVoltage())
	if err != nil {
		panic(err)
	}
	if err := strat.Setup(strategy.DefaultParams()); err != nil {
		panic(err)
	}

	fmt.Printf("Source: %s cell, g=%.0f W/m2, t=%.1f C, max voltage %.2f V\n", mt, *irradiance, *temperature, src.MaxVoltage())
	fmt.Printf("Strategy=%s\n\n", strat.Name())

	echo := backtest.SinkFunc(func(r backtest.LedgerRow) error {
		fmt.Printf(
			"cycle=%3d  v=%6.4f  i=%6.4f  p=%6.4f  p_mpp=%6.4f  v_ref=%6.4f  dir=%-4s  eff=%.4f\n",
			r.Cycle, r.V, r.I, r.P, r.PMPP, r.VRef, string(r.Direction), r.Efficiency,
		)
		return nil
	})

	result, err := backtest.New().Run(context.Background(), backtest.Setup{
		Source:    src,
		Strategy:  strat,
		Converter: model.NewConverter(0, model.DefaultLoadVoltage),
	}, backtest.Options{MaxCycle: *n, Sink: echo})
	if err != nil {
		panic(err)
	}

	if *outCSV != "" {
		if err := backtest.WriteLedgerCSV(*outCSV, result.Ledger); err != nil {
			panic(err)
		}
		fmt.Printf("\nWrote CSV: %s\n", *outCSV)
	}

	fmt.Printf("\nDone. Tracked %.4f J of %.4f J available, efficiency=%.4f\n",
		result.EnergyTracked, result.EnergyAvailable, result.Efficiency)
}
