package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Success(http.StatusOK, data))
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Success(http.StatusCreated, data))
}

// FromError maps a data-plane error to the envelope with the right status.
func FromError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, cdperr.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, cdperr.ErrDuplicate):
		code = http.StatusConflict
	case errors.Is(err, cdperr.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, cdperr.ErrTerminalRemote):
		code = http.StatusBadGateway
	case errors.Is(err, cdperr.ErrTransientRemote):
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Error(code, err.Error()))
}
