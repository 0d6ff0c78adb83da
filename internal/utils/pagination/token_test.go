package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalCursor_RoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 8, 15, 14, 30, 45, 123456789, time.UTC)
	token := EncodeJournalCursor(createdAt, "je-01K2QH7Z9X")
	assert.NotEmpty(t, token)

	decodedAt, decodedID, err := DecodeJournalCursor(token)
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(decodedAt), "created_at should survive the round trip")
	assert.Equal(t, "je-01K2QH7Z9X", decodedID)

	// A non-UTC wall clock encodes to the same instant.
	saoPaulo := time.FixedZone("America/Sao_Paulo", -3*60*60)
	localToken := EncodeJournalCursor(createdAt.In(saoPaulo), "je-01K2QH7Z9X")
	localAt, _, err := DecodeJournalCursor(localToken)
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(localAt))
}

func TestJournalCursor_TimestampTiesStayDistinct(t *testing.T) {
	// Two entries posted in the same batch share created_at; the id keeps
	// their cursors apart so a page boundary between them is exact.
	createdAt := time.Date(2026, 8, 15, 14, 30, 45, 0, time.UTC)
	first := EncodeJournalCursor(createdAt, "je-aaa")
	second := EncodeJournalCursor(createdAt, "je-bbb")
	assert.NotEqual(t, first, second)

	_, firstID, err := DecodeJournalCursor(first)
	require.NoError(t, err)
	_, secondID, err := DecodeJournalCursor(second)
	require.NoError(t, err)
	assert.Equal(t, "je-aaa", firstID)
	assert.Equal(t, "je-bbb", secondID)
}

func TestDecodeJournalCursor_RejectsMalformedTokens(t *testing.T) {
	_, _, err := DecodeJournalCursor("not base64!")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "base64 decode")

	// Valid base64 but no id after the timestamp.
	noID := base64.StdEncoding.EncodeToString([]byte("2026-08-15T14:30:45Z"))
	_, _, err = DecodeJournalCursor(noID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing journal entry id")

	emptyID := base64.StdEncoding.EncodeToString([]byte("2026-08-15T14:30:45Z|"))
	_, _, err = DecodeJournalCursor(emptyID)
	assert.Error(t, err)

	badTime := base64.StdEncoding.EncodeToString([]byte("yesterday-ish|je-aaa"))
	_, _, err = DecodeJournalCursor(badTime)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "created_at parse")
}
