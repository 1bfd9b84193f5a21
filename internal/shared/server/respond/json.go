package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// JSON writes payload with the given status. Responses carry extracted
// personal data or live settings, so they are never cached.
func JSON(c *gin.Context, status int, payload any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

// OK writes a 200 response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Localized writes a JSON body whose text was chosen for lang from the
// request's Accept-Language.
func Localized(c *gin.Context, status int, lang language.Tag, payload any) {
	c.Header("Content-Language", lang.String())
	c.Header("Vary", "Accept-Language")
	JSON(c, status, payload)
}
