package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a panic into the standard 500 envelope. The stack is only
// logged, never returned.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error().
				Interface("panic", r).
				Str("request_id", RequestIDFrom(c)).
				Str("method", c.Request.Method).
				Str("route", c.FullPath()).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.Abort()
				return
			}
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}()
		c.Next()
	}
}
