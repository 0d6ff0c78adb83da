package pgsql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxEventStore struct {
	BaseRepository
}

// newPgxEventStore creates the append-only store backing the domain_events
// outbox table.
func newPgxEventStore(pool *pgxpool.Pool) portsrepo.EventStore {
	return &PgxEventStore{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.EventStore = (*PgxEventStore)(nil)

// AppendBatch appends the events in order inside the caller's transaction.
// Any failure fails the batch so the surrounding transaction rolls back.
func (r *PgxEventStore) AppendBatch(ctx context.Context, tx pgx.Tx, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO domain_events (event_id, event_type, aggregate_id, payload, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now());
	`
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return apperrors.NewAppError(500, "failed to serialize event "+event.EventID(), err)
		}
		batch.Queue(query,
			event.EventID(),
			string(event.EventType()),
			event.AggregateID(),
			payload,
			event.OccurredAt(),
		)
	}

	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return apperrors.NewAppError(500, "failed to append domain events", err)
	}
	return nil
}

// ListByAggregateID returns the stored events of one aggregate in append
// order. A row whose payload no longer decodes is a hard error: the event log
// is the audit trail and is never partially returned.
func (r *PgxEventStore) ListByAggregateID(ctx context.Context, aggregateID string) ([]domain.DomainEvent, error) {
	query := `
		SELECT event_id, event_type, aggregate_id, payload, occurred_at, created_at
		FROM domain_events
		WHERE aggregate_id = $1
		ORDER BY created_at ASC, event_id ASC;
	`
	rows, err := r.Pool.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query domain events for aggregate "+aggregateID, err)
	}
	defer rows.Close()

	events := []domain.DomainEvent{}
	for rows.Next() {
		var record models.DomainEventRecord
		err := rows.Scan(
			&record.EventID,
			&record.EventType,
			&record.AggregateID,
			&record.Payload,
			&record.OccurredAt,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan domain event row for aggregate "+aggregateID, err)
		}
		event, err := decodeStoredEvent(record)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating domain event rows for aggregate "+aggregateID, err)
	}
	return events, nil
}

// decodeStoredEvent rebuilds the concrete event variant from a stored row.
// The switch is exhaustive over the known event types; an unknown type means
// the table and the code disagree, which is an error, never a silent skip.
func decodeStoredEvent(record models.DomainEventRecord) (domain.DomainEvent, error) {
	switch domain.EventType(record.EventType) {
	case domain.EventJournalEntryPosted:
		var e domain.JournalEntryPosted
		if err := json.Unmarshal(record.Payload, &e); err != nil {
			return nil, corruptEventErr(record, err)
		}
		return e, nil
	case domain.EventJournalEntryReversed:
		var e domain.JournalEntryReversed
		if err := json.Unmarshal(record.Payload, &e); err != nil {
			return nil, corruptEventErr(record, err)
		}
		return e, nil
	case domain.EventTransactionLedgerProcessed:
		var e domain.TransactionLedgerProcessed
		if err := json.Unmarshal(record.Payload, &e); err != nil {
			return nil, corruptEventErr(record, err)
		}
		return e, nil
	case domain.EventBudgetExceeded:
		var e domain.BudgetExceeded
		if err := json.Unmarshal(record.Payload, &e); err != nil {
			return nil, corruptEventErr(record, err)
		}
		return e, nil
	case domain.EventUserRegistered:
		var e domain.UserRegistered
		if err := json.Unmarshal(record.Payload, &e); err != nil {
			return nil, corruptEventErr(record, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown stored event type %q for event %s",
			apperrors.ErrInternal, record.EventType, record.EventID)
	}
}

func corruptEventErr(record models.DomainEventRecord, err error) error {
	return fmt.Errorf("%w: corrupt payload for event %s (%s): %v",
		apperrors.ErrInternal, record.EventID, record.EventType, err)
}
