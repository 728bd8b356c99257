package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

type SettingsHandler struct {
	settings *module.SettingsModule
}

func NewSettingsHandler(settings *module.SettingsModule) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup) {
	settings := router.Group("/api/settings")
	{
		settings.GET("", h.GetSettings)
		settings.PUT("", h.SaveSettings)
	}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.GetSettings(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, s)
}

func (h *SettingsHandler) SaveSettings(c *gin.Context) {
	var req model.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.settings.Save(c.Request.Context(), &req); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, &req)
}
