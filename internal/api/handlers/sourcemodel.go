package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mppt-sim/internal/api/models"
	"mppt-sim/internal/data"
	"mppt-sim/internal/model"
)

// SourceModelHandler serves the JSON source model files in one directory
type SourceModelHandler struct {
	dir string
}

// NewSourceModelHandler creates a handler rooted at dir
func NewSourceModelHandler(dir string) *SourceModelHandler {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	log.Info().Str("dir", dir).Msg("using source model directory")
	return &SourceModelHandler{dir: dir}
}

// Dir returns the source model directory
func (h *SourceModelHandler) Dir() string {
	return h.dir
}

// ListSourceModels handles GET /api/v1/source-models
func (h *SourceModelHandler) ListSourceModels(c *gin.Context) {
	out := []models.SourceModelInfo{}

	entries, err := os.ReadDir(h.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", h.dir).Msg("failed to read source model directory")
		c.JSON(http.StatusOK, gin.H{"source_models": out})
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(h.dir, entry.Name())
		specs, err := data.LoadSourceModelJSON(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping invalid source model")
			continue
		}
		cells := 0
		for _, s := range specs {
			cells += int(s.Shape)
		}
		out = append(out, models.SourceModelInfo{
			ID:      strings.TrimSuffix(entry.Name(), ".json"),
			File:    entry.Name(),
			Modules: len(specs),
			Cells:   cells,
		})
	}

	c.JSON(http.StatusOK, gin.H{"source_models": out})
}

// Resolve maps a source model ID to a file path inside the directory.
func (h *SourceModelHandler) Resolve(id string) (string, error) {
	id = strings.TrimSuffix(strings.TrimSpace(id), ".json")
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", model.NewConfigError("source_model", "invalid id %q", id)
	}
	path := filepath.Join(h.dir, id+".json")
	if _, err := os.Stat(path); err != nil {
		return "", model.NewConfigError("source_model", "%q not found", id)
	}
	return path, nil
}
