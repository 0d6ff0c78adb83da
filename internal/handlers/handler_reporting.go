package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
)

// ReportingHandler serves the aggregated read-model views.
type ReportingHandler struct {
	reports portssvc.ReportingSvcFacade
}

func NewReportingHandler(reports portssvc.ReportingSvcFacade) *ReportingHandler {
	return &ReportingHandler{reports: reports}
}

// GetMonthlySummary returns one user's monthly ledger aggregate.
func (h *ReportingHandler) GetMonthlySummary(c *gin.Context) {
	userID := c.Param("userID")
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month"})
		return
	}

	doc, err := h.reports.GetMonthlySummary(c.Request.Context(), userID, year, month)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no summary for that month"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summary"})
		}
		return
	}
	c.JSON(http.StatusOK, doc)
}
