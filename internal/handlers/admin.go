package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AdminListEvents pages through every event, newest first. Out of range
// page parameters are clamped by the service.
func (h HandlerSet) AdminListEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("perPage"))

	result, err := h.events.ListAll(c.Request.Context(), page, perPage)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":  toEventList(result.Events),
		"total":   result.Total,
		"page":    result.Page,
		"perPage": result.PerPage,
	})
}
