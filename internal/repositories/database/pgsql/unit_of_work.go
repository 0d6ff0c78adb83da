package pgsql

import (
	"context"
	"errors"
	"log/slog"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/events"
	"github.com/jackc/pgx/v5"
)

// TxBeginner opens database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgxUnitOfWork binds ledger writes and the event-log append into one
// transaction, and defers event dispatch until after commit. Single-use:
// one Begin, then one Commit or Rollback.
type PgxUnitOfWork struct {
	db         TxBeginner
	store      portsrepo.EventStore
	dispatcher *events.Dispatcher
	logger     *slog.Logger

	tx     pgx.Tx
	buffer []domain.DomainEvent
	done   bool
}

var _ portsrepo.UnitOfWork = (*PgxUnitOfWork)(nil)

func NewPgxUnitOfWork(db TxBeginner, store portsrepo.EventStore, dispatcher *events.Dispatcher, logger *slog.Logger) *PgxUnitOfWork {
	return &PgxUnitOfWork{
		db:         db,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Begin opens the underlying transaction.
func (u *PgxUnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil || u.done {
		return apperrors.ErrAlreadyActive
	}
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return apperrors.NewAppError(500, "failed to begin transaction", err)
	}
	u.tx = tx
	return nil
}

// Tx exposes the open transaction for repository writes.
func (u *PgxUnitOfWork) Tx() pgx.Tx {
	return u.tx
}

// AddEvent buffers an event for the active transaction, FIFO.
func (u *PgxUnitOfWork) AddEvent(event domain.DomainEvent) {
	u.buffer = append(u.buffer, event)
}

// AddEvents buffers a batch of events in order.
func (u *PgxUnitOfWork) AddEvents(evs []domain.DomainEvent) {
	u.buffer = append(u.buffer, evs...)
}

// Commit appends the buffered events inside the transaction, commits, and
// only then dispatches them in buffer order. The buffer is discarded on every
// path so a failed commit can never leak events into a later dispatch.
// Handler failures after a successful commit are logged, never propagated:
// the transaction already happened.
func (u *PgxUnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return apperrors.ErrNotActive
	}

	buffered := u.buffer
	u.buffer = nil

	if len(buffered) > 0 {
		if err := u.store.AppendBatch(ctx, u.tx, buffered); err != nil {
			u.rollbackQuietly(ctx)
			return apperrors.NewAppError(500, "failed to append events, transaction rolled back", err)
		}
	}

	if err := u.tx.Commit(ctx); err != nil {
		u.rollbackQuietly(ctx)
		return apperrors.NewAppError(500, "failed to commit transaction", err)
	}
	u.tx = nil
	u.done = true

	for _, event := range buffered {
		outcomes := u.dispatcher.Dispatch(ctx, event)
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				u.logger.Error("post-commit event handler failed",
					slog.String("event_id", event.EventID()),
					slog.String("event_type", string(event.EventType())),
					slog.String("handler", outcome.Handler),
					slog.String("error", outcome.Err.Error()),
				)
			}
		}
	}
	return nil
}

// Rollback aborts the transaction and discards the buffered events.
func (u *PgxUnitOfWork) Rollback(ctx context.Context) error {
	u.buffer = nil
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback(ctx)
	u.tx = nil
	u.done = true
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return apperrors.NewAppError(500, "failed to rollback transaction", err)
	}
	return nil
}

func (u *PgxUnitOfWork) rollbackQuietly(ctx context.Context) {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		u.logger.Warn("rollback after failed commit", slog.String("error", err.Error()))
	}
	u.tx = nil
	u.done = true
}

// PgxUnitOfWorkFactory creates a fresh unit of work per business operation.
type PgxUnitOfWorkFactory struct {
	db         TxBeginner
	store      portsrepo.EventStore
	dispatcher *events.Dispatcher
	logger     *slog.Logger
}

var _ portsrepo.UnitOfWorkFactory = (*PgxUnitOfWorkFactory)(nil)

func NewPgxUnitOfWorkFactory(db TxBeginner, store portsrepo.EventStore, dispatcher *events.Dispatcher, logger *slog.Logger) *PgxUnitOfWorkFactory {
	return &PgxUnitOfWorkFactory{db: db, store: store, dispatcher: dispatcher, logger: logger}
}

func (f *PgxUnitOfWorkFactory) NewUnitOfWork() portsrepo.UnitOfWork {
	return NewPgxUnitOfWork(f.db, f.store, f.dispatcher, f.logger)
}
