package repositories

import (
	"context"

	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// EventStore is the append-only persistence of domain events. AppendBatch
// participates in the caller's transaction (transactional outbox): the event
// log and the ledger writes survive or vanish together.
type EventStore interface {
	// AppendBatch appends the events inside tx, preserving order. Any failure
	// fails the whole surrounding transaction.
	AppendBatch(ctx context.Context, tx pgx.Tx, events []domain.DomainEvent) error

	// ListByAggregateID returns the stored events for one aggregate in append
	// order. A malformed stored payload is a hard error, never a default.
	ListByAggregateID(ctx context.Context, aggregateID string) ([]domain.DomainEvent, error)
}
