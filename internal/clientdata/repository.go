// Package clientdata provides persistent caching for market data snapshots.
// All data is stored as JSON blobs with expiration timestamps so the
// in-memory price cache can warm-start across process restarts.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AllTables lists all tables in cache.db for cleanup operations.
var AllTables = []string{
	"current_prices",
	"previous_closes",
}

// validTables is a set for O(1) table name validation.
var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// Schema creates the cache tables. Executed at startup; IF NOT EXISTS
// keeps it idempotent across restarts.
const Schema = `
CREATE TABLE IF NOT EXISTS current_prices (ticker TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS previous_closes (ticker TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE INDEX IF NOT EXISTS idx_current_prices_expires ON current_prices(expires_at);
CREATE INDEX IF NOT EXISTS idx_previous_closes_expires ON previous_closes(expires_at);
`

// Repository provides cache operations for market data snapshots.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new snapshot repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema creates the cache tables if they do not exist.
func (r *Repository) InitSchema() error {
	if _, err := r.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(table, ticker string, data interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (ticker, data, expires_at) VALUES (?, ?, ?)",
		table,
	)

	if _, err := r.db.Exec(query, ticker, string(jsonData), expiresAt); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}

	return nil
}

// GetIfFresh returns data only if expires_at > now, nil otherwise.
// Returns nil, nil if the key doesn't exist or data is expired.
func (r *Repository) GetIfFresh(table, ticker string) (json.RawMessage, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	now := time.Now().Unix()

	query := fmt.Sprintf(
		"SELECT data FROM %s WHERE ticker = ? AND expires_at > ?",
		table,
	)

	var data string
	err := r.db.QueryRow(query, ticker, now).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	return json.RawMessage(data), nil
}

// FreshEntry is one unexpired row returned by LoadFresh.
type FreshEntry struct {
	Ticker    string
	Data      json.RawMessage
	ExpiresAt time.Time
}

// LoadFresh returns every unexpired row in a table. Used by the
// in-memory price cache to warm-start after a restart.
func (r *Repository) LoadFresh(table string) ([]FreshEntry, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	now := time.Now().Unix()

	query := fmt.Sprintf(
		"SELECT ticker, data, expires_at FROM %s WHERE expires_at > ?",
		table,
	)

	rows, err := r.db.Query(query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load fresh rows from %s: %w", table, err)
	}
	defer rows.Close()

	var entries []FreshEntry
	for rows.Next() {
		var ticker, data string
		var expiresAt int64
		if err := rows.Scan(&ticker, &data, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
		}
		entries = append(entries, FreshEntry{
			Ticker:    ticker,
			Data:      json.RawMessage(data),
			ExpiresAt: time.Unix(expiresAt, 0),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", table, err)
	}

	return entries, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, ticker string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE ticker = ?", table)

	if _, err := r.db.Exec(query, ticker); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	now := time.Now().Unix()

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)

	result, err := r.db.Exec(query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes all expired entries from all tables.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired from %s: %w", table, err)
		}
		results[table] = deleted
	}

	return results, nil
}
