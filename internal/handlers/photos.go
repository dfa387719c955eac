package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"snapify/internal/middleware"
	"snapify/internal/models"
	"snapify/internal/rules"
	"snapify/internal/service"
)

type photoResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	URL       string    `json:"url"`
	PublicID  string    `json:"publicId"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Creator   string    `json:"creator"`
	DeviceID  *string   `json:"deviceId"`
	CreatedAt time.Time `json:"createdAt"`
}

func toPhotoResponse(p models.Photo) photoResponse {
	return photoResponse{
		ID:        p.ID,
		EventID:   p.EventID,
		URL:       p.URL,
		PublicID:  p.PublicID,
		Width:     p.Width,
		Height:    p.Height,
		Creator:   p.Creator,
		DeviceID:  p.DeviceID,
		CreatedAt: p.CreatedAt,
	}
}

func (h HandlerSet) ListPhotos(c *gin.Context) {
	ctx := c.Request.Context()
	event, err := h.events.GetByCode(ctx, c.Param("code"))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	photos, err := h.photos.ListPhotos(ctx, event.ID, c.Query("deviceId"))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	out := make([]photoResponse, 0, len(photos))
	for _, p := range photos {
		out = append(out, toPhotoResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"photos": out})
}

// CapturePhoto takes a multipart upload with the image in "file" and the
// guest's name and device id as plain fields.
func (h HandlerSet) CapturePhoto(c *gin.Context) {
	maxBytes := h.cfg.Upload.MaxBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "photo is too large")
			return
		}
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is required")
		return
	}
	if header.Size > maxBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("photo must be at most %d bytes", maxBytes))
		return
	}

	file, err := header.Open()
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	if int64(len(data)) > maxBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "photo is too large")
		return
	}

	photo, err := h.photos.Capture(c.Request.Context(), service.CaptureInput{
		EventCode: c.Param("code"),
		Creator:   c.PostForm("creator"),
		DeviceID:  c.PostForm("deviceId"),
		Data:      data,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"photo": toPhotoResponse(photo)})
}

type recordPhotoRequest struct {
	EventID  string `json:"eventId" binding:"required"`
	URL      string `json:"url"`
	PublicID string `json:"publicId" binding:"required"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Creator  string `json:"creator" binding:"required"`
	DeviceID string `json:"deviceId"`
}

func (h HandlerSet) RecordPhoto(c *gin.Context) {
	var req recordPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	photo, err := h.photos.RecordPhoto(c.Request.Context(), service.RecordInput{
		EventID:  req.EventID,
		URL:      req.URL,
		PublicID: req.PublicID,
		Width:    req.Width,
		Height:   req.Height,
		Creator:  req.Creator,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"photo": toPhotoResponse(photo)})
}

func (h HandlerSet) GetPhoto(c *gin.Context) {
	photo, err := h.photos.GetPhoto(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo": toPhotoResponse(photo)})
}

// DeletePhoto is allowed to whoever may manage the photo's event.
func (h HandlerSet) DeletePhoto(c *gin.Context) {
	ctx := c.Request.Context()
	user, _ := middleware.CurrentUser(c)

	photo, err := h.photos.GetPhoto(ctx, c.Param("id"))
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	event, err := h.events.GetByID(ctx, photo.EventID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	if !rules.CanManage(event, user.ID, user.IsAdmin()) {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "only the event owner can do this")
		return
	}

	if err := h.photos.DeletePhoto(ctx, photo); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
