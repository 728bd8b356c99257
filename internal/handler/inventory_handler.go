package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

type InventoryHandler struct {
	inventory *module.Inventory
}

func NewInventoryHandler(inventory *module.Inventory) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	inventory := router.Group("/api/inventory")
	{
		inventory.GET("", h.GetInventory)
		inventory.POST("", h.CreateItem)
		inventory.PUT("/:id", h.UpdateItem)
		inventory.POST("/:id/adjust", h.AdjustStock)
		inventory.DELETE("/:id", h.DeleteItem)
	}
}

func (h *InventoryHandler) GetInventory(c *gin.Context) {
	items, err := h.inventory.GetInventory(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, items)
}

func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var req module.InventoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventory.Create(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, item)
}

func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	var req module.InventoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventory.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, item)
}

// AdjustStock moves stock and ordered counters by deltas.
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	var req struct {
		StockDelta   int `json:"stockDelta"`
		OrderedDelta int `json:"orderedDelta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventory.AdjustStock(c.Request.Context(), c.Param("id"), req.StockDelta, req.OrderedDelta)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, item)
}

func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	if err := h.inventory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": c.Param("id")})
}
