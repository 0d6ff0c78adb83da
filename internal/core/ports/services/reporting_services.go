package services

import (
	"context"

	"github.com/grana-app/grana_backend/internal/models"
)

// ReportingSvcFacade serves aggregated read-model views through the hot
// cache. Reads are eventually consistent with the ledger: they reflect the
// last projection the sync pipeline applied.
type ReportingSvcFacade interface {
	// GetMonthlySummary returns one user's monthly ledger aggregate,
	// cache-aside over the document store. apperrors.ErrNotFound when the
	// month has no projected activity.
	GetMonthlySummary(ctx context.Context, userID string, year, month int) (*models.MonthlySummaryDocument, error)
}
