package repositories

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	JournalEntryRepo JournalEntryRepositoryFacade
	EventStore       EventStore
	UnitOfWorks      UnitOfWorkFactory
	ReadModelRepo    ReadModelRepository
	DashboardCache   DashboardCacheRepository
	MonthlySummary   MonthlySummaryRepository
}
