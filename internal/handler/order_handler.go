package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

type OrderHandler struct {
	orders *module.Orders
}

func NewOrderHandler(orders *module.Orders) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	{
		orders.GET("", h.GetOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("", h.CreateOrder)
		orders.PUT("/:id", h.UpdateOrder)
		orders.DELETE("/:id", h.DeleteOrder)
	}
}

// GetOrders returns the orders of one month (current month by default).
func (h *OrderHandler) GetOrders(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = model.CurrentMonthKey()
	}
	if !model.ValidMonthKey(month) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "month must be YYYY-MM"))
		return
	}

	orders, err := h.orders.GetOrders(c.Request.Context(), month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"month": month, "orders": orders})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	o, err := h.orders.FindOrderByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, o)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req module.OrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	o, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, o)
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req module.OrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	o, err := h.orders.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, o)
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	if err := h.orders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": c.Param("id")})
}
