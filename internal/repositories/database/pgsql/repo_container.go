package pgsql

import (
	"log/slog"

	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/events"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRepositoryProvider wires the relational repositories. Document-store
// repositories are attached by the caller once the Mongo client exists.
func NewRepositoryProvider(dbPool *pgxpool.Pool, dispatcher *events.Dispatcher, logger *slog.Logger) portsrepo.RepositoryProvider {
	journalEntryRepo := newPgxJournalEntryRepository(dbPool)
	eventStore := newPgxEventStore(dbPool)
	uowFactory := NewPgxUnitOfWorkFactory(dbPool, eventStore, dispatcher, logger)

	return portsrepo.RepositoryProvider{
		JournalEntryRepo: journalEntryRepo,
		EventStore:       eventStore,
		UnitOfWorks:      uowFactory,
	}
}
