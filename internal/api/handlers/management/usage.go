package management

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/nghyane/msgproxy/internal/logging"
)

const defaultUsageDays = 7

// GetUsage returns live counters plus persisted breakdowns for the last ?days= days.
func (h *Handler) GetUsage(c *gin.Context) {
	days := defaultUsageDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	since := time.Now().AddDate(0, 0, -days)
	summary, err := h.usage.Summary(c.Request.Context(), since)
	if err != nil {
		log.Warnf("management: usage query: %v", err)
		if summary == nil {
			respondError(c, http.StatusInternalServerError, ErrCodeQueryFailed, err.Error())
			return
		}
	}
	respondOK(c, UsageResponse{Persistent: h.usage.Persistent(), Summary: summary})
}

// GetResolve reports how ?model= resolves against the current catalog.
func (h *Handler) GetResolve(c *gin.Context) {
	model := c.Query("model")
	if model == "" {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "model query parameter is required")
		return
	}
	if h.resolver == nil || h.registry == nil {
		respondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "model resolution unavailable")
		return
	}
	catalog := h.registry.Snapshot()
	res := h.resolver.ResolveDetailed(model, catalog)
	respondOK(c, ResolveResponse{
		Requested: model,
		Resolved:  res.Model,
		Tier:      string(res.Tier),
		InCatalog: catalog.Has(res.Model),
	})
}
