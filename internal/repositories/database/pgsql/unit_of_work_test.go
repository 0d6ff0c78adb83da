package pgsql_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/grana-app/grana_backend/internal/events"
	"github.com/grana-app/grana_backend/internal/repositories/database/pgsql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- fake pgx.Tx ---

type fakeTx struct {
	commitErr    error
	commitCalls  int
	rollbackCall int
}

var _ pgx.Tx = (*fakeTx)(nil)

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.commitCalls++
	return t.commitErr
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rollbackCall++
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                              { return nil }

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

// --- mock EventStore ---

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) AppendBatch(ctx context.Context, tx pgx.Tx, evs []domain.DomainEvent) error {
	args := m.Called(ctx, tx, evs)
	return args.Error(0)
}

func (m *MockEventStore) ListByAggregateID(ctx context.Context, aggregateID string) ([]domain.DomainEvent, error) {
	args := m.Called(ctx, aggregateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DomainEvent), args.Error(1)
}

// --- recording handler ---

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
}

func (h *recordingHandler) Name() string { return "recording-handler" }

func (h *recordingHandler) EventTypes() []domain.EventType {
	return []domain.EventType{domain.EventUserRegistered}
}

func (h *recordingHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, event.EventID())
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registeredEvent(t *testing.T, email string) domain.UserRegistered {
	t.Helper()
	return domain.NewUserRegistered("user-1", email, "Maria", time.Now().UTC())
}

func TestUnitOfWork_CommitAppendsThenDispatchesInOrder(t *testing.T) {
	tx := &fakeTx{}
	store := new(MockEventStore)
	dispatcher := events.NewDispatcher(testLogger())
	handler := &recordingHandler{}
	require.NoError(t, dispatcher.Register(handler))

	uow := pgsql.NewPgxUnitOfWork(&fakeBeginner{tx: tx}, store, dispatcher, testLogger())
	require.NoError(t, uow.Begin(context.Background()))

	first := registeredEvent(t, "first@example.com")
	second := registeredEvent(t, "second@example.com")
	uow.AddEvent(first)
	uow.AddEvent(second)

	store.On("AppendBatch", mock.Anything, tx, []domain.DomainEvent{first, second}).Return(nil).Once()

	require.NoError(t, uow.Commit(context.Background()))

	store.AssertExpectations(t)
	assert.Equal(t, 1, tx.commitCalls)
	assert.Equal(t, []string{first.EventID(), second.EventID()}, handler.seen)
}

func TestUnitOfWork_AppendFailureRollsBackAndNeverDispatches(t *testing.T) {
	tx := &fakeTx{}
	store := new(MockEventStore)
	dispatcher := events.NewDispatcher(testLogger())
	handler := &recordingHandler{}
	require.NoError(t, dispatcher.Register(handler))

	uow := pgsql.NewPgxUnitOfWork(&fakeBeginner{tx: tx}, store, dispatcher, testLogger())
	require.NoError(t, uow.Begin(context.Background()))
	uow.AddEvent(registeredEvent(t, "first@example.com"))

	storeErr := errors.New("disk full")
	store.On("AppendBatch", mock.Anything, tx, mock.Anything).Return(storeErr).Once()

	err := uow.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)

	assert.Equal(t, 0, tx.commitCalls)
	assert.Equal(t, 1, tx.rollbackCall)
	assert.Empty(t, handler.seen)
}

func TestUnitOfWork_CommitFailureNeverDispatches(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	store := new(MockEventStore)
	dispatcher := events.NewDispatcher(testLogger())
	handler := &recordingHandler{}
	require.NoError(t, dispatcher.Register(handler))

	uow := pgsql.NewPgxUnitOfWork(&fakeBeginner{tx: tx}, store, dispatcher, testLogger())
	require.NoError(t, uow.Begin(context.Background()))
	uow.AddEvent(registeredEvent(t, "first@example.com"))

	store.On("AppendBatch", mock.Anything, tx, mock.Anything).Return(nil).Once()

	err := uow.Commit(context.Background())
	require.Error(t, err)
	assert.Empty(t, handler.seen)

	// The buffer is gone: a retry on the same unit of work cannot replay it.
	assert.ErrorIs(t, uow.Commit(context.Background()), apperrors.ErrNotActive)
}

func TestUnitOfWork_CommitWithoutEventsSkipsAppend(t *testing.T) {
	tx := &fakeTx{}
	store := new(MockEventStore)
	dispatcher := events.NewDispatcher(testLogger())

	uow := pgsql.NewPgxUnitOfWork(&fakeBeginner{tx: tx}, store, dispatcher, testLogger())
	require.NoError(t, uow.Begin(context.Background()))

	require.NoError(t, uow.Commit(context.Background()))

	store.AssertNotCalled(t, "AppendBatch", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, tx.commitCalls)
}

func TestUnitOfWork_IsSingleUse(t *testing.T) {
	tx := &fakeTx{}
	store := new(MockEventStore)
	dispatcher := events.NewDispatcher(testLogger())

	uow := pgsql.NewPgxUnitOfWork(&fakeBeginner{tx: tx}, store, dispatcher, testLogger())
	require.NoError(t, uow.Begin(context.Background()))
	assert.ErrorIs(t, uow.Begin(context.Background()), apperrors.ErrAlreadyActive)

	require.NoError(t, uow.Commit(context.Background()))
	assert.ErrorIs(t, uow.Begin(context.Background()), apperrors.ErrAlreadyActive)
}

func TestUnitOfWork_RollbackDiscardsBuffer(t *testing.T) {
	tx := &fakeTx{}
	store := new(MockEventStore)
	dispatcher := events.NewDispatcher(testLogger())
	handler := &recordingHandler{}
	require.NoError(t, dispatcher.Register(handler))

	uow := pgsql.NewPgxUnitOfWork(&fakeBeginner{tx: tx}, store, dispatcher, testLogger())
	require.NoError(t, uow.Begin(context.Background()))
	uow.AddEvents([]domain.DomainEvent{registeredEvent(t, "first@example.com")})

	require.NoError(t, uow.Rollback(context.Background()))
	assert.Equal(t, 1, tx.rollbackCall)
	assert.Empty(t, handler.seen)

	// Rollback with nothing active is a no-op.
	require.NoError(t, uow.Rollback(context.Background()))
}
