package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"snapify/internal/middleware"
	"snapify/internal/models"
	"snapify/internal/rules"
)

type eventResponse struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Title            string    `json:"title"`
	MaxPhotos        int       `json:"maxPhotos"`
	MaxPhotosPerUser *int      `json:"maxPhotosPerUser"`
	UsedPhotos       int       `json:"usedPhotos"`
	Remaining        int       `json:"remaining"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Expired          bool      `json:"expired"`
	AllowedFilters   []string  `json:"allowedFilters"`
	CreatedByID      *string   `json:"createdById"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toEventResponse(e models.Event) eventResponse {
	return eventResponse{
		ID:               e.ID,
		Code:             e.Code,
		Title:            e.Title,
		MaxPhotos:        e.MaxPhotos,
		MaxPhotosPerUser: e.MaxPhotosPerUser,
		UsedPhotos:       e.UsedPhotos,
		Remaining:        e.Remaining(),
		ExpiresAt:        e.ExpiresAt,
		Expired:          !time.Now().Before(e.ExpiresAt),
		AllowedFilters:   e.AllowedFilters,
		CreatedByID:      e.CreatedByID,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func toEventList(events []models.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	return out
}

type createEventRequest struct {
	Code             string    `json:"code"`
	Title            string    `json:"title" binding:"required"`
	MaxPhotos        int       `json:"maxPhotos" binding:"required"`
	MaxPhotosPerUser *int      `json:"maxPhotosPerUser"`
	ExpiresAt        time.Time `json:"expiresAt" binding:"required"`
	AllowedFilters   []string  `json:"allowedFilters"`
}

func (h HandlerSet) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	user, _ := middleware.CurrentUser(c)

	event, err := h.events.Create(c.Request.Context(), user.ID, rules.NewEvent{
		Code:             req.Code,
		Title:            req.Title,
		MaxPhotos:        req.MaxPhotos,
		MaxPhotosPerUser: req.MaxPhotosPerUser,
		ExpiresAt:        req.ExpiresAt,
		AllowedFilters:   req.AllowedFilters,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": toEventResponse(event)})
}

func (h HandlerSet) GetEventByID(c *gin.Context) {
	event, err := h.events.GetByID(c.Request.Context(), c.Query("id"))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": toEventResponse(event)})
}

func (h HandlerSet) GetEvent(c *gin.Context) {
	event, err := h.events.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": toEventResponse(event)})
}

// nullableInt tells an absent field apart from an explicit null.
type nullableInt struct {
	Set   bool
	Value *int
}

func (n *nullableInt) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

type updateEventRequest struct {
	Title            *string     `json:"title"`
	ExpiresAt        *time.Time  `json:"expiresAt"`
	AllowedFilters   []string    `json:"allowedFilters"`
	MaxPhotos        *int        `json:"maxPhotos"`
	MaxPhotosPerUser nullableInt `json:"maxPhotosPerUser"`
}

func (r updateEventRequest) patch() rules.EventPatch {
	p := rules.EventPatch{
		Title:          r.Title,
		ExpiresAt:      r.ExpiresAt,
		AllowedFilters: r.AllowedFilters,
		MaxPhotos:      r.MaxPhotos,
	}
	if r.MaxPhotosPerUser.Set {
		if r.MaxPhotosPerUser.Value == nil {
			p.ClearPerUserLimit = true
		} else {
			p.MaxPhotosPerUser = r.MaxPhotosPerUser.Value
		}
	}
	return p
}

func (h HandlerSet) UpdateEvent(c *gin.Context) {
	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	event, _ := middleware.Event(c)

	updated, err := h.events.Update(c.Request.Context(), event, req.patch())
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": toEventResponse(updated)})
}

func (h HandlerSet) DeleteEvent(c *gin.Context) {
	event, _ := middleware.Event(c)
	if err := h.events.Delete(c.Request.Context(), event); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) MyEvents(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	events, err := h.events.ListOwnerEvents(c.Request.Context(), user.ID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toEventList(events)})
}
