package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mppt-sim/internal/api/models"
	"mppt-sim/internal/strategy"
)

// StrategyHandler handles strategy-related requests
type StrategyHandler struct{}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler() *StrategyHandler {
	return &StrategyHandler{}
}

var commonParameters = []models.ParameterInfo{
	{
		Name:        "v_ref",
		Type:        "float",
		Description: "Initial reference voltage (V, whole array)",
		Default:     0.0,
	},
	{
		Name:        "sample_rate",
		Type:        "int",
		Description: "Decide on every Nth cycle only; other cycles hold the reference",
		Default:     1,
	},
}

var strideParameters = []models.ParameterInfo{
	{
		Name:        "stride_mode",
		Type:        "string",
		Description: "Perturbation size: fixed, optimal, exponential or bisection",
		Default:     string(strategy.StrideOptimal),
	},
	{
		Name:        "stride",
		Type:        "float",
		Description: "Step size for the fixed stride mode (V)",
		Default:     0.01,
	},
	{
		Name:        "v_best",
		Type:        "float[3]",
		Description: "Per-cell quadratic estimate of the maximum power voltage against temperature",
		Default:     []float64{strategy.DefaultVBest.A, strategy.DefaultVBest.B, strategy.DefaultVBest.C},
	},
	{
		Name:        "calibrate",
		Type:        "bool",
		Description: "Fit v_best and power_estimate to the configured cell model before running",
		Default:     false,
	},
}

func withCommon(extra ...[]models.ParameterInfo) []models.ParameterInfo {
	out := append([]models.ParameterInfo(nil), commonParameters...)
	for _, e := range extra {
		out = append(out, e...)
	}
	return out
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	strategies := []models.StrategyInfo{
		{
			Name:        string(strategy.KindPandO),
			Title:       "Perturb and Observe",
			Description: "Hill climbing. Keeps moving in the direction that last raised power and reverses when power drops.",
			Parameters:  withCommon(strideParameters),
		},
		{
			Name:        string(strategy.KindIncrementalConductance),
			Title:       "Incremental Conductance",
			Description: "Compares the incremental conductance dI/dV with -I/V; they are equal at the maximum power point.",
			Parameters:  withCommon(strideParameters),
		},
		{
			Name:        string(strategy.KindFeedbackControl),
			Title:       "dP/dV Feedback Control",
			Description: "Follows the sign of the power slope and nudges upward once the slope is nearly flat.",
			Parameters:  withCommon(strideParameters),
		},
		{
			Name:        string(strategy.KindPassthrough),
			Title:       "Passthrough",
			Description: "Sets the reference directly to the probe point of a univariate search over the voltage range.",
			Parameters: withCommon([]models.ParameterInfo{
				{
					Name:        "search_mode",
					Type:        "string",
					Description: "Search: golden, ternary, bisection or newton",
					Default:     string(strategy.SearchGolden),
				},
				{
					Name:        "stride",
					Type:        "float",
					Description: "First step of the newton search (V, newton only)",
					Default:     0.01,
				},
				{
					Name:        "power_estimate",
					Type:        "float[3]",
					Description: "Per-cell quadratic estimate of maximum power against temperature (newton only)",
					Default:     []float64{strategy.DefaultPowerEstimate.A, strategy.DefaultPowerEstimate.B, strategy.DefaultPowerEstimate.C},
				},
			}),
		},
		{
			Name:        string(strategy.KindOracle),
			Title:       "Oracle",
			Description: "Perfect knowledge. Requests the true global maximum power point each cycle; an upper bound for ranking.",
			Parameters:  withCommon(),
		},
	}

	log.Debug().Int("count", len(strategies)).Msg("listing strategies")
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}
