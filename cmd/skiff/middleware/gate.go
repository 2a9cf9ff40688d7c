package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhalstead/skiff/internal/gate"
)

// CookieName is the credential cookie set after a successful secret
// verification.
const CookieName = "skiff_token"

// SecretHeader carries the shared secret on a per-request basis.
const SecretHeader = "X-Upload-Secret"

// GateMiddleware rejects requests lacking a valid credential when the
// gate is active. A disabled gate passes everything through.
func GateMiddleware(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Required() {
			c.Next()
			return
		}
		if HasCredential(c, g) {
			c.Next()
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		c.Abort()
	}
}

// HasCredential reports whether the request carries the shared secret
// header or a valid credential cookie.
func HasCredential(c *gin.Context, g *gate.Gate) bool {
	if secret := c.GetHeader(SecretHeader); secret != "" && g.Verify(secret) {
		return true
	}
	if token, err := c.Cookie(CookieName); err == nil && g.ValidateToken(token) == nil {
		return true
	}
	return false
}
