package models

import "mppt-sim/internal/config"

// SimulateRequest represents the request body for a single simulation run
type SimulateRequest struct {
	Config config.Config `json:"config"`
	// SourceModel names a file in the server's source model directory
	// (without the .json extension). It replaces config.source modules.
	SourceModel string          `json:"source_model,omitempty"`
	Options     SimulateOptions `json:"options,omitempty"`
}

// SimulateOptions contains optional response shaping
type SimulateOptions struct {
	IncludeLedger bool `json:"include_ledger,omitempty"` // default: false
}

// CompareRequest runs several MPPT variations against one source
type CompareRequest struct {
	BaseConfig  config.Config `json:"base_config"`
	SourceModel string        `json:"source_model,omitempty"`
	Variations  []Variation   `json:"variations" binding:"required,min=1,dive"`
}

// Variation overrides the tracker of the base config
type Variation struct {
	Name string            `json:"name" binding:"required"`
	MPPT config.MPPTConfig `json:"mppt"`
}

// CharacterizeRequest represents the query for a source characterization
type CharacterizeRequest struct {
	Model        string  `form:"model"`
	Irradiance   string  `form:"irradiance"`   // comma-separated, default: "1000"
	Temperatures string  `form:"temperatures"` // comma-separated, default: sweep range
	Step         float64 `form:"step"`         // default: 0.01
	Fit          bool    `form:"fit"`
}
