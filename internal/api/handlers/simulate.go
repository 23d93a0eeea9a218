package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mppt-sim/internal/analysis"
	"mppt-sim/internal/api/metrics"
	"mppt-sim/internal/api/models"
	"mppt-sim/internal/backtest"
	"mppt-sim/internal/config"
	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
)

// SimulateHandler handles simulation requests
type SimulateHandler struct {
	cache    *data.CurrentCache
	sources  *SourceModelHandler
	metrics  *metrics.Collector
	maxCycle int
}

// NewSimulateHandler creates a new simulate handler. cache, sources and m
// may be nil. maxCycle <= 0 disables the per-request cycle limit.
func NewSimulateHandler(cache *data.CurrentCache, sources *SourceModelHandler, m *metrics.Collector, maxCycle int) *SimulateHandler {
	return &SimulateHandler{cache: cache, sources: sources, metrics: m, maxCycle: maxCycle}
}

// Simulate handles POST /api/v1/simulate
func (h *SimulateHandler) Simulate(c *gin.Context) {
	var req models.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	cfg := req.Config
	if err := h.prepare(&cfg, req.SourceModel); err != nil {
		writeConfigError(c, err)
		return
	}

	res, run, err := h.run(c, &cfg)
	if err != nil {
		writeRunError(c, err)
		return
	}

	response := models.SimulateResponse{
		Status:      "completed",
		Summary:     buildSummary(res, cfg.Simulation.DiffThreshold),
		Calibration: run.Calibration,
	}
	if req.Options.IncludeLedger {
		response.Ledger = convertLedger(res.Ledger)
	}
	c.JSON(http.StatusOK, response)
}

// Compare handles POST /api/v1/simulate/compare
func (h *SimulateHandler) Compare(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	base := req.BaseConfig
	if base.MPPT.Algorithm == "" {
		// Variations supply the tracker; validate the rest against a placeholder.
		base.MPPT.Algorithm = "oracle"
	}
	if err := h.prepare(&base, req.SourceModel); err != nil {
		writeConfigError(c, err)
		return
	}

	results := make([]*backtest.Result, 0, len(req.Variations))
	names := map[*backtest.Result]string{}
	comparison := make([]models.ComparisonResult, 0, len(req.Variations))
	for _, v := range req.Variations {
		cfg := base
		mppt := base.MPPT
		mppt.Algorithm = req.BaseConfig.MPPT.Algorithm
		cfg.MPPT = MergeMPPT(mppt, v.MPPT)
		if err := cfg.Validate(); err != nil {
			comparison = append(comparison, models.ComparisonResult{Name: v.Name, Error: err.Error()})
			continue
		}
		res, _, err := h.run(c, &cfg)
		if err != nil {
			if c.Request.Context().Err() != nil {
				writeRunError(c, err)
				return
			}
			comparison = append(comparison, models.ComparisonResult{Name: v.Name, Error: err.Error()})
			continue
		}
		results = append(results, res)
		names[res] = v.Name
	}

	ranked := rankResults(results, names, base.Simulation.DiffThreshold)
	c.JSON(http.StatusOK, models.CompareResponse{Comparison: append(ranked, comparison...)})
}

// prepare resolves the source model, applies defaults and validates.
func (h *SimulateHandler) prepare(cfg *config.Config, sourceModel string) error {
	if sourceModel != "" {
		if h.sources == nil {
			return model.NewConfigError("source_model", "source models are not available")
		}
		path, err := h.sources.Resolve(sourceModel)
		if err != nil {
			return err
		}
		cfg.Source.Impulse = nil
		cfg.Source.Regime = nil
		cfg.Source.Modules = nil
		cfg.Source.ModelFile = path
		if err := cfg.Source.LoadModelFile(""); err != nil {
			return err
		}
	}
	cfg.ApplyDefaults()
	if h.maxCycle > 0 && cfg.Simulation.MaxCycle > h.maxCycle {
		return model.NewConfigError("simulation.max_cycle", "%d exceeds the server limit of %d", cfg.Simulation.MaxCycle, h.maxCycle)
	}
	return cfg.Validate()
}

func (h *SimulateHandler) run(c *gin.Context, cfg *config.Config) (*backtest.Result, *config.Run, error) {
	algorithm := cfg.MPPT.Algorithm
	run, err := cfg.Build(h.cache)
	if err != nil {
		h.metrics.ObserveRunFailure(algorithm, "invalid")
		return nil, nil, err
	}

	start := time.Now()
	res, err := backtest.New().Run(c.Request.Context(), run.Setup, run.Options)
	if err != nil {
		h.metrics.ObserveRunFailure(algorithm, "error")
		return nil, nil, err
	}
	elapsed := time.Since(start)
	h.metrics.ObserveRun(algorithm, res.Cycles, res.Efficiency, elapsed)
	if h.cache != nil {
		h.metrics.SetCacheEntries(h.cache.Stats().Entries)
	}

	log.Info().
		Str("algorithm", algorithm).
		Int("cycles", res.Cycles).
		Float64("efficiency", res.Efficiency).
		Dur("elapsed", elapsed).
		Msg("simulation completed")
	return res, run, nil
}

// MergeMPPT overlays non-zero fields from override onto base.
func MergeMPPT(base, override config.MPPTConfig) config.MPPTConfig {
	out := base
	if override.Algorithm != "" {
		out.Algorithm = override.Algorithm
	}
	if override.StrideMode != "" {
		out.StrideMode = override.StrideMode
	}
	if override.SearchMode != "" {
		out.SearchMode = override.SearchMode
	}
	if override.VRef != 0 {
		out.VRef = override.VRef
	}
	if override.Stride != 0 {
		out.Stride = override.Stride
	}
	if override.SampleRate != 0 {
		out.SampleRate = override.SampleRate
	}
	if len(override.VBest) != 0 {
		out.VBest = override.VBest
	}
	if len(override.PowerEstimate) != 0 {
		out.PowerEstimate = override.PowerEstimate
	}
	if override.Calibrate {
		out.Calibrate = true
	}
	return out
}

func rankResults(results []*backtest.Result, names map[*backtest.Result]string, threshold float64) []models.ComparisonResult {
	// Ranking works on summaries, so label each copy with its variation name.
	relabeled := make([]*backtest.Result, 0, len(results))
	strategyOf := map[string]string{}
	for _, r := range results {
		cp := *r
		cp.Strategy = names[r]
		relabeled = append(relabeled, &cp)
		strategyOf[cp.Strategy] = r.Strategy
	}

	out := make([]models.ComparisonResult, 0, len(results))
	for _, rr := range analysis.RankByEfficiency(relabeled, threshold) {
		s := summaryFrom(rr.RunSummary)
		s.Strategy = strategyOf[rr.Strategy]
		out = append(out, models.ComparisonResult{
			Rank:    rr.Rank,
			Name:    rr.Strategy,
			Summary: &s,
		})
	}
	return out
}

func buildSummary(res *backtest.Result, threshold float64) models.RunSummary {
	return summaryFrom(analysis.Summarize(res, threshold))
}

func summaryFrom(s analysis.RunSummary) models.RunSummary {
	return models.RunSummary{
		Strategy:        s.Strategy,
		Cycles:          s.Cycles,
		Efficiency:      s.Efficiency,
		EnergyTracked:   s.EnergyTracked,
		EnergyAvailable: s.EnergyAvailable,
		OffPeakFraction: s.OffPeakFraction,
		MeanPDiff:       s.MeanPDiff,
		P50PDiff:        s.P50PDiff,
		P95PDiff:        s.P95PDiff,
		MaxPDiff:        s.MaxPDiff,
		MeanAbsVError:   s.MeanAbsVError,
		SettleCycle:     s.SettleCycle,
		Reversals:       s.Reversals,
	}
}

func convertLedger(ledger []backtest.LedgerRow) []models.LedgerRow {
	out := make([]models.LedgerRow, len(ledger))
	for i, r := range ledger {
		out[i] = models.LedgerRow{
			Cycle:       r.Cycle,
			Irradiance:  r.Irradiance,
			Temperature: r.Temperature,
			Load:        r.Load,
			VMPP:        r.VMPP,
			IMPP:        r.IMPP,
			PMPP:        r.PMPP,
			V:           r.V,
			I:           r.I,
			P:           r.P,
			VRef:        r.VRef,
			PulseWidth:  r.PulseWidth,
			Direction:   string(r.Direction),
			PDiff:       r.PDiff,
			PDiffA:      r.PDiffA,
			Efficiency:  r.Efficiency,
			Curve:       r.Curve,
		}
	}
	return out
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func writeConfigError(c *gin.Context, err error) {
	detail := models.ErrorDetail{Code: "INVALID_CONFIG", Message: err.Error()}
	var ce *model.ConfigError
	if errors.As(err, &ce) {
		detail.Details = map[string]interface{}{"field": ce.Field}
	}
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: detail})
}

func writeRunError(c *gin.Context, err error) {
	if errors.Is(err, model.ErrConfiguration) {
		writeConfigError(c, err)
		return
	}
	log.Error().Err(err).Msg("simulation failed")
	writeError(c, http.StatusInternalServerError, "SIMULATION_ERROR", err.Error())
}
