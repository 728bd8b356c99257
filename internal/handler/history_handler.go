package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/history"
	"github.com/veselinppetkov/orders-app-sub000/internal/lifecycle"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

type HistoryHandler struct {
	log   *history.Log
	guard *lifecycle.Guard
}

func NewHistoryHandler(log *history.Log, guard *lifecycle.Guard) *HistoryHandler {
	return &HistoryHandler{log: log, guard: guard}
}

func (h *HistoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	hist := router.Group("/api/history")
	{
		hist.GET("", h.GetHistory)
		hist.POST("/undo", h.Undo)
		hist.POST("/redo", h.Redo)
		hist.POST("/save", h.Save)
	}
}

func (h *HistoryHandler) GetHistory(c *gin.Context) {
	undo, redo := h.log.Depths()
	response.OK(c, gin.H{
		"undoDepth": undo,
		"redoDepth": redo,
		"canUndo":   h.log.CanUndo(),
		"canRedo":   h.log.CanRedo(),
		"lastSave":  h.guard.LastSave(),
	})
}

func (h *HistoryHandler) Undo(c *gin.Context) {
	action, err := h.log.Undo()
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"undone": action})
}

func (h *HistoryHandler) Redo(c *gin.Context) {
	action, err := h.log.Redo()
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"redone": action})
}

// Save forces an immediate full flush to the local tier.
func (h *HistoryHandler) Save(c *gin.Context) {
	h.guard.ForceSave()
	response.OK(c, gin.H{"savedAt": h.guard.LastSave()})
}
