package handlers

import (
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegisterRoutes sets up the HTTP surface. The service is event driven; HTTP
// only hosts the lifecycle endpoints.
func RegisterRoutes(
	r *gin.Engine,
	dbPool *pgxpool.Pool,
	services *portssvc.ServiceContainer,
) {
	health := NewHealthHandler(dbPool, services.Sync)
	r.GET("/healthz", health.Live)
	r.GET("/readyz", health.Ready)

	if services.Reports != nil {
		reporting := NewReportingHandler(services.Reports)
		r.GET("/users/:userID/summaries/:year/:month", reporting.GetMonthlySummary)
	}
}
