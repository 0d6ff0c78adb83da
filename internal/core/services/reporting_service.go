package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/grana-app/grana_backend/internal/models"
	"github.com/grana-app/grana_backend/internal/platform/cache"
	"github.com/grana-app/grana_backend/internal/utils/resilience"
)

const summaryCacheTTL = 15 * time.Minute

// reportingService answers read-model queries cache-aside: the hot cache is
// consulted first and filled from the document store on a miss. A broken
// cache degrades to direct document-store reads.
type reportingService struct {
	BaseService
	summaries portsrepo.MonthlySummaryRepository
	cache     resilience.BlobCache
}

// NewReportingService creates a new ReportingService.
func NewReportingService(summaries portsrepo.MonthlySummaryRepository, blobCache resilience.BlobCache) portssvc.ReportingSvcFacade {
	return &reportingService{summaries: summaries, cache: blobCache}
}

var _ portssvc.ReportingSvcFacade = (*reportingService)(nil)

// GetMonthlySummary returns one user's monthly ledger aggregate.
func (s *reportingService) GetMonthlySummary(ctx context.Context, userID string, year, month int) (*models.MonthlySummaryDocument, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", apperrors.ErrValidation)
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month %d out of range", apperrors.ErrValidation, month)
	}

	key := cache.SummaryKey(userID, year, month)
	blob, err := resilience.CacheAside(ctx, resilience.CacheAsideConfig{
		TTL:    summaryCacheTTL,
		Logger: s.GetLogger(ctx),
	}, s.cache, key, func(ctx context.Context) ([]byte, error) {
		doc, err := s.summaries.FindSummary(ctx, userID, year, month)
		if err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	})
	if err != nil {
		return nil, err
	}

	var doc models.MonthlySummaryDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: corrupt cached summary for %s: %v", apperrors.ErrInternal, key, err)
	}
	return &doc, nil
}
