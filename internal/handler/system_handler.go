package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/cloud"
	"github.com/veselinppetkov/orders-app-sub000/internal/localstore"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

// SystemHandler exposes health, diagnostics, month selection, and the
// export/import recovery surface.
type SystemHandler struct {
	gateway *cloud.Gateway
	local   *localstore.Persistence
	state   *state.Store
	modules ModuleSet
}

// ModuleSet bundles the entity modules for the diagnostics endpoint.
type ModuleSet struct {
	Orders    *module.Orders
	Clients   *module.Clients
	Expenses  *module.Expenses
	Inventory *module.Inventory
	Settings  *module.SettingsModule
}

func NewSystemHandler(gateway *cloud.Gateway, local *localstore.Persistence, st *state.Store, modules ModuleSet) *SystemHandler {
	return &SystemHandler{gateway: gateway, local: local, state: st, modules: modules}
}

func (h *SystemHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/health", h.Health)
	router.GET("/api/stats", h.Stats)
	router.GET("/api/months", h.GetMonths)
	router.PUT("/api/months/current", h.SetCurrentMonth)
	router.GET("/api/export", h.Export)
	router.POST("/api/import", h.Import)
}

// Health reports both tiers at once.
func (h *SystemHandler) Health(c *gin.Context) {
	response.OK(c, gin.H{
		"cloud":   h.gateway.HealthCheck(),
		"storage": h.local.StorageHealth(),
	})
}

// Stats reports per-module activity counters and the state change log.
func (h *SystemHandler) Stats(c *gin.Context) {
	response.OK(c, gin.H{
		"orders":    h.modules.Orders.Stats(),
		"clients":   h.modules.Clients.Stats(),
		"expenses":  h.modules.Expenses.Stats(),
		"inventory": h.modules.Inventory.Stats(),
		"settings":  h.modules.Settings.Stats(),
		"gateway":   h.gateway.Stats(),
		"changeLog": h.state.ChangeLog(),
	})
}

func (h *SystemHandler) GetMonths(c *gin.Context) {
	months, _ := h.state.Get(state.KeyAvailableMonths).([]model.MonthOption)
	current, _ := h.state.Get(state.KeyCurrentMonth).(string)
	response.OK(c, gin.H{
		"current":   current,
		"available": months,
	})
}

func (h *SystemHandler) SetCurrentMonth(c *gin.Context) {
	var req struct {
		Month string `json:"month"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.state.Set(state.KeyCurrentMonth, req.Month); err != nil {
		response.FromError(c, err)
		return
	}
	if err := h.local.SaveCurrentMonth(req.Month); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"current": req.Month})
}

// Export streams the whole local tier as one JSON document.
func (h *SystemHandler) Export(c *gin.Context) {
	doc, err := h.local.ExportAll()
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="orders-export.json"`)
	c.Data(http.StatusOK, "application/json", []byte(doc))
}

// Import restores a previously exported document.
func (h *SystemHandler) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "unreadable body: "+err.Error()))
		return
	}
	if err := h.local.ImportAll(string(raw)); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"imported": true})
}
