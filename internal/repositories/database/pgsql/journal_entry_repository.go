package pgsql

import (
	"context"
	"errors"
	"strconv"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/models"
	"github.com/grana-app/grana_backend/internal/utils/mapping"
	"github.com/grana-app/grana_backend/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxJournalEntryRepository struct {
	BaseRepository
}

// newPgxJournalEntryRepository creates a new repository for journal entry and ledger entry data.
func newPgxJournalEntryRepository(pool *pgxpool.Pool) portsrepo.JournalEntryRepositoryFacade {
	return &PgxJournalEntryRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

// Ensure PgxJournalEntryRepository implements portsrepo.JournalEntryRepositoryFacade
var _ portsrepo.JournalEntryRepositoryFacade = (*PgxJournalEntryRepository)(nil)

const journalEntryColumns = `
	journal_entry_id, user_id, transaction_id, description, status,
	total_amount, currency, posted_at, reversed_at, reversed_by,
	metadata, version, created_at, last_updated_at
`

const ledgerEntryColumns = `
	entry_id, transaction_id, account_id, account_name, account_type,
	entry_type, amount, currency, description, reference_id, reference_type,
	metadata, journal_entry_id, line_no, posted_at, created_at, last_updated_at
`

// SaveJournalEntryInTx inserts the journal entry header and its ledger entry
// lines inside the caller's transaction. Ledger lines keep their position via
// line_no so reads reproduce insertion order. The stored version starts at 1.
func (r *PgxJournalEntryRepository) SaveJournalEntryInTx(ctx context.Context, tx pgx.Tx, je *domain.JournalEntry) error {
	modelJE, err := mapping.ToModelJournalEntry(je)
	if err != nil {
		return err
	}
	modelJE.Version = 1

	headerQuery := `
		INSERT INTO journal_entries (` + journalEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	_, err = tx.Exec(ctx, headerQuery,
		modelJE.JournalEntryID,
		modelJE.UserID,
		modelJE.TransactionID,
		modelJE.Description,
		modelJE.Status,
		modelJE.TotalAmount,
		modelJE.Currency,
		modelJE.PostedAt,
		modelJE.ReversedAt,
		modelJE.ReversedBy,
		modelJE.Metadata,
		modelJE.Version,
		modelJE.CreatedAt,
		modelJE.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to insert journal entry "+modelJE.JournalEntryID, err)
	}

	lineQuery := `
		INSERT INTO ledger_entries (` + ledgerEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
	`
	batch := &pgx.Batch{}
	for i, entry := range je.Entries {
		modelEntry, err := mapping.ToModelLedgerEntry(entry)
		if err != nil {
			return err
		}
		batch.Queue(lineQuery,
			modelEntry.EntryID,
			modelEntry.TransactionID,
			modelEntry.AccountID,
			modelEntry.AccountName,
			modelEntry.AccountType,
			modelEntry.EntryType,
			modelEntry.Amount,
			modelEntry.Currency,
			modelEntry.Description,
			modelEntry.ReferenceID,
			modelEntry.ReferenceType,
			modelEntry.Metadata,
			modelEntry.JournalEntryID,
			i,
			modelEntry.PostedAt,
			modelEntry.CreatedAt,
			modelEntry.UpdatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return apperrors.NewAppError(500, "failed to insert ledger entries for journal entry "+modelJE.JournalEntryID, err)
	}

	je.Version = modelJE.Version
	return nil
}

// UpdateJournalEntryInTx updates the mutable header fields of a journal entry
// with an optimistic concurrency check on version. Ledger entry lines are
// append-only and never touched here.
func (r *PgxJournalEntryRepository) UpdateJournalEntryInTx(ctx context.Context, tx pgx.Tx, je *domain.JournalEntry) error {
	modelJE, err := mapping.ToModelJournalEntry(je)
	if err != nil {
		return err
	}

	query := `
		UPDATE journal_entries
		SET status = $1,
		    posted_at = $2,
		    reversed_at = $3,
		    reversed_by = $4,
		    metadata = $5,
		    last_updated_at = $6,
		    version = version + 1
		WHERE journal_entry_id = $7 AND version = $8;
	`
	ct, err := tx.Exec(ctx, query,
		modelJE.Status,
		modelJE.PostedAt,
		modelJE.ReversedAt,
		modelJE.ReversedBy,
		modelJE.Metadata,
		modelJE.UpdatedAt,
		modelJE.JournalEntryID,
		modelJE.Version,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update journal entry "+modelJE.JournalEntryID, err)
	}

	if ct.RowsAffected() == 0 {
		// Distinguish a missing row from a lost version race.
		var exists bool
		checkErr := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM journal_entries WHERE journal_entry_id = $1);`,
			modelJE.JournalEntryID,
		).Scan(&exists)
		if checkErr != nil {
			return apperrors.NewAppError(500, "failed to check journal entry "+modelJE.JournalEntryID, checkErr)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConcurrentModification
	}

	je.Version++
	return nil
}

// FindJournalEntryByID retrieves a journal entry and its ledger entries.
func (r *PgxJournalEntryRepository) FindJournalEntryByID(ctx context.Context, journalEntryID string) (*domain.JournalEntry, error) {
	query := `
		SELECT ` + journalEntryColumns + `
		FROM journal_entries
		WHERE journal_entry_id = $1;
	`
	modelJE, err := scanJournalEntryRow(r.Pool.QueryRow(ctx, query, journalEntryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find journal entry by ID "+journalEntryID, err)
	}

	entryRows, err := r.findLedgerEntryRows(ctx, journalEntryID)
	if err != nil {
		return nil, err
	}

	return mapping.ToDomainJournalEntry(modelJE, entryRows)
}

// FindJournalEntriesByTransactionID retrieves every journal entry backing one
// user-facing transaction, oldest first. A posted-then-reversed transaction
// yields both the original and the offsetting entry.
func (r *PgxJournalEntryRepository) FindJournalEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.JournalEntry, error) {
	query := `
		SELECT ` + journalEntryColumns + `
		FROM journal_entries
		WHERE transaction_id = $1
		ORDER BY created_at ASC, journal_entry_id ASC;
	`
	rows, err := r.Pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query journal entries for transaction "+transactionID, err)
	}
	defer rows.Close()

	headers := []models.JournalEntry{}
	for rows.Next() {
		modelJE, err := scanJournalEntryRow(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan journal entry row for transaction "+transactionID, err)
		}
		headers = append(headers, modelJE)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating journal entry rows for transaction "+transactionID, err)
	}

	result := make([]domain.JournalEntry, 0, len(headers))
	for _, header := range headers {
		entryRows, err := r.findLedgerEntryRows(ctx, header.JournalEntryID)
		if err != nil {
			return nil, err
		}
		domainJE, err := mapping.ToDomainJournalEntry(header, entryRows)
		if err != nil {
			return nil, err
		}
		result = append(result, *domainJE)
	}
	return result, nil
}

// ListJournalEntriesByUser retrieves a paginated list of journal entries for a
// user using token-based pagination, newest first.
func (r *PgxJournalEntryRepository) ListJournalEntriesByUser(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.JournalEntry, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	// Fetch one extra row to determine whether a next page exists.
	fetchLimit := limit + 1

	baseQuery := `
		SELECT ` + journalEntryColumns + `
		FROM journal_entries
		WHERE user_id = $1
	`
	// Stable ordering: created_at DESC with journal_entry_id as tie-breaker.
	orderByClause := `ORDER BY created_at DESC, journal_entry_id DESC`

	args := []interface{}{userID}
	query := baseQuery

	if nextToken != nil && *nextToken != "" {
		cursorAt, cursorID, decodeErr := pagination.DecodeJournalCursor(*nextToken)
		if decodeErr != nil {
			return nil, nil, apperrors.NewAppError(400, "invalid nextToken", decodeErr)
		}
		query += ` AND (created_at, journal_entry_id) < ($2, $3)`
		args = append(args, cursorAt, cursorID)
	}

	query += " " + orderByClause + " LIMIT $" + strconv.Itoa(len(args)+1) + ";"
	args = append(args, fetchLimit)

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query journal entries for user "+userID, err)
	}
	defer rows.Close()

	headers := make([]models.JournalEntry, 0, fetchLimit)
	for rows.Next() {
		modelJE, err := scanJournalEntryRow(rows)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan journal entry row for user "+userID, err)
		}
		headers = append(headers, modelJE)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating journal entry rows for user "+userID, err)
	}

	var nextTokenVal *string
	if len(headers) > limit {
		headers = headers[:limit]
		last := headers[limit-1]
		token := pagination.EncodeJournalCursor(last.CreatedAt, last.JournalEntryID)
		nextTokenVal = &token
	}

	result := make([]domain.JournalEntry, 0, len(headers))
	for _, header := range headers {
		entryRows, err := r.findLedgerEntryRows(ctx, header.JournalEntryID)
		if err != nil {
			return nil, nil, err
		}
		domainJE, err := mapping.ToDomainJournalEntry(header, entryRows)
		if err != nil {
			return nil, nil, err
		}
		result = append(result, *domainJE)
	}
	return result, nextTokenVal, nil
}

// findLedgerEntryRows loads the ledger entry rows of one journal entry in
// insertion order.
func (r *PgxJournalEntryRepository) findLedgerEntryRows(ctx context.Context, journalEntryID string) ([]models.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE journal_entry_id = $1
		ORDER BY line_no ASC;
	`
	rows, err := r.Pool.Query(ctx, query, journalEntryID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query ledger entries for journal entry "+journalEntryID, err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		var lineNo int
		err := rows.Scan(
			&e.EntryID,
			&e.TransactionID,
			&e.AccountID,
			&e.AccountName,
			&e.AccountType,
			&e.EntryType,
			&e.Amount,
			&e.Currency,
			&e.Description,
			&e.ReferenceID,
			&e.ReferenceType,
			&e.Metadata,
			&e.JournalEntryID,
			&lineNo,
			&e.PostedAt,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan ledger entry row for journal entry "+journalEntryID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating ledger entry rows for journal entry "+journalEntryID, err)
	}
	return entries, nil
}

func scanJournalEntryRow(row pgx.Row) (models.JournalEntry, error) {
	var m models.JournalEntry
	err := row.Scan(
		&m.JournalEntryID,
		&m.UserID,
		&m.TransactionID,
		&m.Description,
		&m.Status,
		&m.TotalAmount,
		&m.Currency,
		&m.PostedAt,
		&m.ReversedAt,
		&m.ReversedBy,
		&m.Metadata,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}
