package models

import "time"

// EntityDocument is the denormalized read-model copy of a primary entity,
// stored in the document database and kept eventually consistent via sync
// messages. Version increases monotonically per entity; a consumer applying
// an older version than the one stored is a no-op. Hash fingerprints Data for
// cache validation.
type EntityDocument struct {
	EntityID   string         `bson:"_id" json:"entityId"`
	EntityType string         `bson:"entityType" json:"entityType"`
	UserID     string         `bson:"userId" json:"userId"`
	Version    int64          `bson:"version" json:"version"`
	Hash       string         `bson:"hash" json:"hash"`
	Data       map[string]any `bson:"data" json:"data"`
	UpdatedAt  time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// DashboardCacheDocument is a cached dashboard payload keyed by
// (userID, cacheKey). ExpiresAt backs TTL-based eviction.
type DashboardCacheDocument struct {
	UserID    string         `bson:"userId" json:"userId"`
	CacheKey  string         `bson:"cacheKey" json:"cacheKey"`
	Payload   map[string]any `bson:"payload" json:"payload"`
	Version   int64          `bson:"version" json:"version"`
	Hash      string         `bson:"hash" json:"hash"`
	ExpiresAt time.Time      `bson:"expiresAt" json:"expiresAt"`
	UpdatedAt time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// MonthlySummaryDocument aggregates a user's ledger activity for one month,
// keyed by (userID, year, month). Amounts are fixed-point decimal strings to
// avoid binary floating point in the document store.
type MonthlySummaryDocument struct {
	UserID       string    `bson:"userId" json:"userId"`
	Year         int       `bson:"year" json:"year"`
	Month        int       `bson:"month" json:"month"`
	Currency     string    `bson:"currency" json:"currency"`
	TotalDebits  string    `bson:"totalDebits" json:"totalDebits"`
	TotalCredits string    `bson:"totalCredits" json:"totalCredits"`
	EntryCount   int64     `bson:"entryCount" json:"entryCount"`
	Version      int64     `bson:"version" json:"version"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
