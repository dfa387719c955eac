package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

// Health reports 503 when the database is unreachable. Redis only carries
// background work, so its failure degrades the status without failing it.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Cache: "disabled", Environment: h.cfg.Environment}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("database ping failed")
		resp.Database = "error"
		resp.Status = "error"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		resp.Cache = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("redis ping failed")
			resp.Cache = "error"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	c.JSON(status, resp)
}
