package proxy

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

const defaultOwner = "msgproxy"

func modelEntry(m registry.Model) ir.ModelEntry {
	owner := m.OwnedBy
	if owner == "" {
		owner = defaultOwner
	}
	return ir.ModelEntry{
		ID:                 m.ID,
		Object:             "model",
		OwnedBy:            owner,
		Name:               m.Name,
		SupportedEndpoints: m.SupportedEndpoints,
	}
}

// ListModels returns the current catalog snapshot in list form.
func (h *Handler) ListModels(c *gin.Context) {
	models := h.catalog().Models()
	list := ir.ModelList{Object: "list", Data: make([]ir.ModelEntry, 0, len(models))}
	for _, m := range models {
		list.Data = append(list.Data, modelEntry(m))
	}
	c.JSON(http.StatusOK, list)
}

// GetModel looks up one model. Any requested spelling the resolver maps onto a catalog member is accepted.
func (h *Handler) GetModel(c *gin.Context) {
	id := strings.TrimPrefix(c.Param("id"), "/")
	if id == "" {
		h.ListModels(c)
		return
	}
	catalog := h.catalog()
	m, ok := catalog.Get(h.resolve(id))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, ir.NewErrorResponse(ir.ClaudeErrNotFound, "model not found: "+id))
		return
	}
	c.JSON(http.StatusOK, modelEntry(m))
}
