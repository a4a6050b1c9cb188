package httpapi

import (
	"errors"
	"net/http"

	"eventpay/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every client-facing endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func Accepted(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message})
}

// Error dispatches the HTTP status from the error's tagged kind. Untagged
// errors are reported as internal without leaking their text.
func Error(c *gin.Context, err error) {
	var be errutil.BaseError
	if errors.As(err, &be) {
		c.JSON(be.Code.HTTPStatus(), Response{Success: false, Message: be.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, Response{Success: false, Message: "internal error"})
}
