package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"snapify/internal/models"
	"snapify/internal/rules"
)

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			abort(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			return
		}
		c.Next()
	}
}

type EventLoader interface {
	GetByCode(ctx context.Context, code string) (models.Event, error)
}

// RequireEventOwner loads the event named by the :code route parameter and
// lets the request through only for its owner or an admin. Must run after
// Auth.
func RequireEventOwner(events EventLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		event, err := events.GetByCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			if errors.Is(err, rules.ErrNotFound) {
				abort(c, http.StatusNotFound, "NOT_FOUND", "event not found")
				return
			}
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			return
		}

		if !rules.CanManage(event, user.ID, user.IsAdmin()) {
			abort(c, http.StatusForbidden, "FORBIDDEN", "only the event owner can do this")
			return
		}

		c.Set(ctxEvent, event)
		c.Next()
	}
}
