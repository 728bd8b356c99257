package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/cloud"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

// ImageHandler serves the order-images bucket: uploads, signed URLs, and
// token-gated fetches.
type ImageHandler struct {
	gateway *cloud.Gateway
}

func NewImageHandler(gateway *cloud.Gateway) *ImageHandler {
	return &ImageHandler{gateway: gateway}
}

func (h *ImageHandler) RegisterRoutes(router *gin.RouterGroup) {
	images := router.Group("/api/images")
	{
		images.POST("", h.Upload)
		images.GET("/:path", h.Fetch)
		images.DELETE("/:path", h.Delete)
	}
}

// Upload stores a base64 image and returns its path plus a signed URL.
func (h *ImageHandler) Upload(c *gin.Context) {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"` // base64, data-URL prefix tolerated
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	path, err := h.gateway.UploadImage(c.Request.Context(), req.Content, req.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}
	signed, err := h.gateway.SignedImageURL(path)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, gin.H{"path": path, "url": signed})
}

// Fetch serves image bytes. The token must grant exactly the requested
// path.
func (h *ImageHandler) Fetch(c *gin.Context) {
	requested, err := url.PathUnescape(c.Param("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "bad image path"))
		return
	}
	granted, err := h.gateway.VerifyImageToken(c.Query("token"))
	if err != nil || granted != requested {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "image token rejected"))
		return
	}

	content, err := h.gateway.FetchImage(c.Request.Context(), granted)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", content)
}

func (h *ImageHandler) Delete(c *gin.Context) {
	requested, err := url.PathUnescape(c.Param("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "bad image path"))
		return
	}
	if err := h.gateway.DeleteImage(c.Request.Context(), requested); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": requested})
}
