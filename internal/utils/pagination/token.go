// Package pagination builds the opaque page tokens used by ledger listings.
// Listings use keyset pagination: the token carries the sort keys of the
// last row of a page, and the next query resumes strictly after that row.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// cursorTimeFormat keeps nanosecond precision so two journal entries created
// in the same millisecond still order deterministically.
const cursorTimeFormat = time.RFC3339Nano

// EncodeJournalCursor packs the sort keys of the last returned journal entry
// into an opaque token. Journal listings order by (created_at DESC,
// journal_entry_id DESC); carrying both keys lets a page boundary that falls
// between rows sharing a timestamp resume at the exact row.
func EncodeJournalCursor(createdAt time.Time, journalEntryID string) string {
	raw := createdAt.UTC().Format(cursorTimeFormat) + "|" + journalEntryID
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeJournalCursor unpacks a token produced by EncodeJournalCursor. A
// token that was tampered with or truncated fails to decode; callers map
// that to a bad-request error rather than guessing a page boundary.
func DecodeJournalCursor(token string) (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token (base64 decode): %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid page token: missing journal entry id")
	}
	createdAt, err := time.Parse(cursorTimeFormat, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token (created_at parse): %w", err)
	}
	return createdAt, parts[1], nil
}
