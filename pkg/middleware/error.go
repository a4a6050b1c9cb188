package middleware

import (
	"eventpay/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

// Error renders the last error a handler attached via c.Error using the
// tagged error kind for status dispatch.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		httpapi.Error(c, err.Err)
	}
}
