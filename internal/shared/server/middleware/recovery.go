package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/shared/server/respond"
	"catastro-backend/internal/shared/telemetry"
)

// PanicWriter renders the response for a recovered panic. The panic value
// is for logging only and must not reach the client.
type PanicWriter func(c *gin.Context, recovered any)

// Recovery recovers from panics with the standard error body.
func Recovery() gin.HandlerFunc {
	return RecoveryWith(nil)
}

// RecoveryWith recovers from panics and lets routes with their own response
// contract render the failure. A nil writer uses respond.Error.
func RecoveryWith(write PanicWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			telemetry.Error("panic", map[string]any{
				"request_id":  RequestIDFromContext(c),
				"document_id": c.GetString(DocumentIDKey),
				"error":       rec,
				"stack":       string(debug.Stack()),
				"path":        c.Request.URL.Path,
				"method":      c.Request.Method,
			})
			c.Set(ErrorKindKey, "internal")
			switch {
			case c.Writer.Written():
				// Headers are gone; the client sees a truncated body.
			case write != nil:
				write(c, rec)
			default:
				respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
			}
			c.Abort()
		}()
		c.Next()
	}
}
