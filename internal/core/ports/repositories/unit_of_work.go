package repositories

import (
	"context"

	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// UnitOfWork coordinates one database transaction so that ledger writes and
// the event-log append are atomic, and event dispatch is strictly conditional
// on that atomicity. A unit of work is single-use: one Begin, then one Commit
// or Rollback, and never shared across concurrent operations.
type UnitOfWork interface {
	// Begin opens the underlying transaction. Fails with
	// apperrors.ErrAlreadyActive if called again before Commit or Rollback.
	Begin(ctx context.Context) error

	// Tx exposes the open transaction for repository writes. Nil before Begin.
	Tx() pgx.Tx

	// AddEvent buffers an event for the active transaction, FIFO.
	AddEvent(event domain.DomainEvent)

	// AddEvents buffers a batch of events in order.
	AddEvents(events []domain.DomainEvent)

	// Commit appends the buffered events to the event store inside the
	// transaction, commits, and only then dispatches every buffered event.
	// Any pre-commit failure rolls back, discards the whole buffer and
	// propagates; handler failures never fail a committed transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction and discards the buffered events. Safe
	// to call with an empty buffer or after a failed Commit.
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory creates a fresh unit of work per logical business
// operation.
type UnitOfWorkFactory interface {
	NewUnitOfWork() UnitOfWork
}
