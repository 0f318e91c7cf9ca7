package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roster/internal/roster"
)

// Response is the envelope of every JSON reply. Code is 0 on success and the
// HTTP status otherwise.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// statusOf maps the roster error taxonomy onto HTTP.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, roster.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with the mapped status. Internal errors are attached to
// the context for the access log and their detail is kept out of the response.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		fail(c, status, "internal error")
		return
	}
	fail(c, status, err.Error())
}
