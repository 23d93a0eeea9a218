package backtest

import (
	"mppt-sim/internal/model"
)

// LedgerRow is one row of per-cycle output.
// This is the primary artifact for "what happened" in a run.
type LedgerRow struct {
	Cycle int

	Irradiance  float64
	Temperature float64
	Load        float64

	// True global maximum power point of the array this cycle.
	VMPP float64
	IMPP float64
	PMPP float64

	// Operating point the tracker measured this cycle.
	V float64
	I float64
	P float64

	VRef       float64
	PulseWidth float64
	Direction  model.Direction

	// PDiff is |PMPP - P| over their mean.
	PDiff float64
	// PDiffA is the fraction of cycles so far with PDiff above the threshold.
	PDiffA float64
	// Efficiency is tracked energy over available energy so far.
	Efficiency float64

	// Curve is the array IV curve, only kept when requested.
	Curve model.Curve
}

type Result struct {
	Strategy string
	Ledger   []LedgerRow

	Cycles          int
	EnergyTracked   float64
	EnergyAvailable float64
	Efficiency      float64
	PDiffA          float64
}
