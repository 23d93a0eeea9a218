package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mppt-sim/internal/analysis"
	"mppt-sim/internal/api/models"
	"mppt-sim/internal/backtest"
	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
)

// maxSweeps bounds the irradiance × temperature grid of one request.
const maxSweeps = 400

// CharacterizeHandler handles source characterization requests
type CharacterizeHandler struct {
	cache *data.CurrentCache
}

// NewCharacterizeHandler creates a new characterize handler. cache may be nil.
func NewCharacterizeHandler(cache *data.CurrentCache) *CharacterizeHandler {
	return &CharacterizeHandler{cache: cache}
}

// Characterize handles GET /api/v1/characterize
func (h *CharacterizeHandler) Characterize(c *gin.Context) {
	var req models.CharacterizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	mt, err := model.ParseModelType(req.Model)
	if err != nil {
		writeConfigError(c, err)
		return
	}
	irradiance, err := parseList(req.Irradiance, []float64{1000})
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_PARAM", "irradiance: "+err.Error())
		return
	}
	temps, err := parseList(req.Temperatures, analysis.DefaultSweepTemperatures)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_PARAM", "temperatures: "+err.Error())
		return
	}
	if n := len(irradiance) * len(temps); n > maxSweeps {
		writeError(c, http.StatusBadRequest, "TOO_MANY_SWEEPS", strconv.Itoa(n)+" sweeps requested, limit is "+strconv.Itoa(maxSweeps))
		return
	}
	step := req.Step
	if step == 0 {
		step = backtest.DefaultIVStep
	}
	if math.IsNaN(step) || step < model.MinIVStep {
		writeError(c, http.StatusBadRequest, "INVALID_PARAM", "step must be at least "+strconv.FormatFloat(model.MinIVStep, 'g', -1, 64))
		return
	}

	var lookup model.LookupFunc
	if h.cache != nil {
		lookup = h.cache.Lookup()
	}

	resp := models.CharacterizeResponse{Model: mt.String()}
	if req.Fit {
		if len(irradiance) != 1 {
			writeError(c, http.StatusBadRequest, "INVALID_PARAM", "fit needs exactly one irradiance")
			return
		}
		cal, err := analysis.Calibrate(mt, model.DefaultCellParams(), irradiance[0], temps, step, lookup)
		if err != nil {
			writeRunError(c, err)
			return
		}
		resp.Points = cal.Points
		resp.VBest = &cal.VBest
		resp.PowerEstimate = &cal.PowerEstimate
	} else {
		resp.Points, err = analysis.Characterize(mt, model.DefaultCellParams(), irradiance, temps, step, lookup)
		if err != nil {
			writeRunError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

func parseList(s string, def []float64) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("bad number " + strconv.Quote(p))
		}
		out = append(out, x)
	}
	return out, nil
}
