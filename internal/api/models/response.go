package models

import (
	"mppt-sim/internal/analysis"
	"mppt-sim/internal/model"
	"mppt-sim/internal/strategy"
)

// SimulateResponse represents the response from a simulation run
type SimulateResponse struct {
	Status      string                `json:"status"`
	Summary     RunSummary            `json:"summary"`
	Calibration *analysis.Calibration `json:"calibration,omitempty"`
	Ledger      []LedgerRow           `json:"ledger,omitempty"`
}

// RunSummary contains aggregated run results
type RunSummary struct {
	Strategy        string  `json:"strategy"`
	Cycles          int     `json:"cycles"`
	Efficiency      float64 `json:"tracking_efficiency"`
	EnergyTracked   float64 `json:"energy_tracked"`
	EnergyAvailable float64 `json:"energy_available"`
	OffPeakFraction float64 `json:"p_diff_a"`
	MeanPDiff       float64 `json:"mean_p_diff"`
	P50PDiff        float64 `json:"p50_p_diff"`
	P95PDiff        float64 `json:"p95_p_diff"`
	MaxPDiff        float64 `json:"max_p_diff"`
	MeanAbsVError   float64 `json:"mean_abs_v_error"`
	SettleCycle     int     `json:"settle_cycle"` // -1 if never settled
	Reversals       int     `json:"reversals"`
}

// LedgerRow represents one control cycle
type LedgerRow struct {
	Cycle       int           `json:"cycle"`
	Irradiance  float64       `json:"irradiance"`
	Temperature float64       `json:"temperature"`
	Load        float64       `json:"load"`
	VMPP        float64       `json:"v_mpp"`
	IMPP        float64       `json:"i_mpp"`
	PMPP        float64       `json:"p_mpp"`
	V           float64       `json:"v"`
	I           float64       `json:"i"`
	P           float64       `json:"p"`
	VRef        float64       `json:"v_ref"`
	PulseWidth  float64       `json:"pulse_width"`
	Direction   string        `json:"direction"` // "UP", "DOWN", "HOLD"
	PDiff       float64       `json:"p_diff"`
	PDiffA      float64       `json:"p_diff_a"`
	Efficiency  float64       `json:"tracking_efficiency"`
	Curve       []model.Point `json:"curve,omitempty"`
}

// CompareResponse represents the response from a comparison
type CompareResponse struct {
	Comparison []ComparisonResult `json:"comparison"`
}

// ComparisonResult contains results for one variation
type ComparisonResult struct {
	Rank    int         `json:"rank,omitempty"`
	Name    string      `json:"name"`
	Summary *RunSummary `json:"summary,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CharacterizeResponse contains sweep results and optional fits
type CharacterizeResponse struct {
	Model         string                    `json:"model"`
	Points        []analysis.CharacterPoint `json:"points"`
	VBest         *strategy.Quadratic       `json:"v_best,omitempty"`
	PowerEstimate *strategy.Quadratic       `json:"power_estimate,omitempty"`
}

// SourceModelInfo represents a source model file on the server
type SourceModelInfo struct {
	ID      string `json:"id"`
	File    string `json:"file"`
	Modules int    `json:"modules"`
	Cells   int    `json:"cells"`
}

// StrategyInfo represents information about a strategy
type StrategyInfo struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a strategy parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "string", "bool"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
