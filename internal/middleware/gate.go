package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"snapify/internal/access"
	"snapify/internal/security"
)

// Gate applies the page access rules to browser navigation. API routes and
// non-GET requests pass through untouched; the API enforces its own auth.
// The token is only parsed, never looked up, so a revoked session may still
// see a page shell until its token expires.
func Gate(secret, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || path == "/api" || path == "/metrics" ||
			(c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			c.Next()
			return
		}

		decision := access.Decide(identityFromRequest(c, secret, cookieName), path)
		if !decision.Allowed() {
			c.Redirect(http.StatusFound, decision.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}

func identityFromRequest(c *gin.Context, secret, cookieName string) access.Identity {
	token := security.BearerToken(c.GetHeader("Authorization"))
	if token == "" && cookieName != "" {
		token, _ = c.Cookie(cookieName)
	}
	if token == "" {
		return access.Identity{}
	}
	claims, err := security.ParseAccessToken(token, secret)
	if err != nil {
		return access.Identity{}
	}
	return access.Identity{Authenticated: true, Admin: claims.IsAdmin()}
}
