package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"snapify/internal/models"
	"snapify/internal/security"
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionLookup interface {
	GetByID(ctx context.Context, id string) (models.Session, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

// Auth requires a valid bearer access token backed by a live session and an
// active user.
func Auth(secret string, users UserLookup, sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := security.BearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
			return
		}

		claims, err := security.ParseAccessToken(tokenStr, secret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
			return
		}

		ctx := c.Request.Context()
		session, err := sessions.GetByID(ctx, claims.SessionID)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "session not found")
			return
		}
		if session.UserID != claims.UserID || session.DeviceID != claims.DeviceID {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "session mismatch")
			return
		}

		user, err := users.GetByID(ctx, claims.UserID)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "user not found")
			return
		}
		if user.Status != models.UserStatusActive {
			abort(c, http.StatusForbidden, "FORBIDDEN", "account suspended")
			return
		}

		_ = sessions.Touch(ctx, session.ID, c.ClientIP(), c.GetHeader("User-Agent"))

		c.Set(ctxAccessClaims, *claims)
		c.Set(ctxCurrentUser, user)
		c.Next()
	}
}
