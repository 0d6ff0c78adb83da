package handlers

import (
	"context"
	"net/http"
	"time"

	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler reports liveness of the process and readiness of its
// dependencies (primary database and the sync pipeline).
type HealthHandler struct {
	dbPool *pgxpool.Pool
	sync   portssvc.SyncSvcFacade
}

func NewHealthHandler(dbPool *pgxpool.Pool, sync portssvc.SyncSvcFacade) *HealthHandler {
	return &HealthHandler{dbPool: dbPool, sync: sync}
}

// Live always answers OK while the process runs.
func (h *HealthHandler) Live(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready answers 200 when the database responds and the sync service is
// healthy, 503 otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := h.dbPool.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.sync != nil && !h.sync.IsHealthy(ctx) {
		checks["sync"] = "unhealthy"
		healthy = false
	} else {
		checks["sync"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, checks)
}
