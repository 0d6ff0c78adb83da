package services

import (
	"log/slog"

	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/grana-app/grana_backend/internal/events"
	"github.com/grana-app/grana_backend/internal/platform/broker"
	"github.com/grana-app/grana_backend/internal/platform/cache"
	"github.com/grana-app/grana_backend/internal/platform/config"
)

// NewServiceContainer creates a new service container with properly
// initialized dependencies, and registers the ledger-to-sync bridge on the
// event dispatcher.
func NewServiceContainer(
	cfg *config.Config,
	repos portsrepo.RepositoryProvider,
	dispatcher *events.Dispatcher,
	producer *broker.Producer,
	cacheManager *cache.Manager,
	logger *slog.Logger,
) (*portssvc.ServiceContainer, error) {
	container := &portssvc.ServiceContainer{}

	container.Ledger = NewLedgerService(repos.JournalEntryRepo, repos.UnitOfWorks)

	container.Sync = NewSyncService(SyncServiceDeps{
		Brokers:        cfg.KafkaBrokers,
		Producer:       producer,
		ReadModels:     repos.ReadModelRepo,
		DashboardCache: repos.DashboardCache,
		Cache:          cacheManager,
		Logger:         logger,
	})

	if repos.MonthlySummary != nil && cacheManager != nil {
		container.Reports = NewReportingService(repos.MonthlySummary, cacheManager)
	}

	if err := dispatcher.Register(NewLedgerSyncHandler(container.Sync)); err != nil {
		return nil, err
	}
	if repos.MonthlySummary != nil {
		if err := dispatcher.Register(NewMonthlySummaryProjector(repos.MonthlySummary, container.Sync)); err != nil {
			return nil, err
		}
	}

	return container, nil
}
