package middleware

import (
	"github.com/gin-gonic/gin"

	"snapify/internal/models"
	"snapify/internal/security"
)

const (
	ctxCurrentUser  = "current_user"
	ctxAccessClaims = "access_claims"
	ctxEvent        = "event"
)

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ctxCurrentUser)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func AccessClaims(c *gin.Context) (security.AccessClaims, bool) {
	v, ok := c.Get(ctxAccessClaims)
	if !ok {
		return security.AccessClaims{}, false
	}
	claims, ok := v.(security.AccessClaims)
	return claims, ok
}

// Event returns the event loaded by RequireEventOwner.
func Event(c *gin.Context) (models.Event, bool) {
	v, ok := c.Get(ctxEvent)
	if !ok {
		return models.Event{}, false
	}
	event, ok := v.(models.Event)
	return event, ok
}
