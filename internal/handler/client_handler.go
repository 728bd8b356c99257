package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

type ClientHandler struct {
	clients *module.Clients
}

func NewClientHandler(clients *module.Clients) *ClientHandler {
	return &ClientHandler{clients: clients}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/api/clients")
	{
		clients.GET("", h.GetClients)
		clients.GET("/:id", h.GetClient)
		clients.GET("/:id/stats", h.GetClientStats)
		clients.POST("", h.CreateClient)
		clients.PUT("/:id", h.UpdateClient)
		clients.DELETE("/:id", h.DeleteClient)
	}
}

func (h *ClientHandler) GetClients(c *gin.Context) {
	clients, err := h.clients.GetClients(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, clients)
}

func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clients.FindClientByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, client)
}

// GetClientStats returns the order aggregate for one client.
func (h *ClientHandler) GetClientStats(c *gin.Context) {
	client, err := h.clients.FindClientByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{
		"client": client,
		"stats":  h.clients.GetClientStats(client.Name),
	})
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req module.ClientInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clients.Create(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, client)
}

func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req module.ClientInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clients.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, client)
}

func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clients.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": c.Param("id")})
}
