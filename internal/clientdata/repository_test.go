package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema())

	return db
}

func TestInitSchemaIdempotent(t *testing.T) {
	db := setupTestDB(t)

	repo := NewRepository(db)
	require.NoError(t, repo.InitSchema())
	require.NoError(t, repo.InitSchema())
}

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	data := map[string]float64{"price": 123.45}
	require.NoError(t, repo.Store("current_prices", "ALPHA", data, time.Hour))

	raw, err := repo.GetIfFresh("current_prices", "ALPHA")
	require.NoError(t, err)
	require.NotNil(t, raw)

	var parsed map[string]float64
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, 123.45, parsed["price"])
}

func TestGetIfFreshMissingKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	raw, err := repo.GetIfFresh("current_prices", "NOPE")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestGetIfFreshExpiredEntry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("current_prices", "ALPHA", map[string]float64{"price": 1}, -time.Hour))

	raw, err := repo.GetIfFresh("current_prices", "ALPHA")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("current_prices", "ALPHA", map[string]float64{"price": 1}, time.Hour))
	require.NoError(t, repo.Store("current_prices", "ALPHA", map[string]float64{"price": 2}, time.Hour))

	raw, err := repo.GetIfFresh("current_prices", "ALPHA")
	require.NoError(t, err)

	var parsed map[string]float64
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, 2.0, parsed["price"])

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM current_prices").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInvalidTableRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	err := repo.Store("portfolios; DROP TABLE current_prices", "ALPHA", nil, time.Hour)
	assert.Error(t, err)

	_, err = repo.GetIfFresh("nonexistent", "ALPHA")
	assert.Error(t, err)
}

func TestLoadFreshSkipsExpiredRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("current_prices", "FRESH", map[string]float64{"price": 1}, time.Hour))
	require.NoError(t, repo.Store("current_prices", "STALE", map[string]float64{"price": 2}, -time.Hour))

	entries, err := repo.LoadFresh("current_prices")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "FRESH", entries[0].Ticker)
	assert.WithinDuration(t, time.Now().Add(time.Hour), entries[0].ExpiresAt, 5*time.Second)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("current_prices", "FRESH", map[string]float64{"price": 1}, time.Hour))
	require.NoError(t, repo.Store("current_prices", "STALE", map[string]float64{"price": 2}, -time.Hour))

	deleted, err := repo.DeleteExpired("current_prices")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	raw, err := repo.GetIfFresh("current_prices", "FRESH")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestDeleteAllExpiredCoversBothTables(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("current_prices", "STALE", map[string]float64{"price": 1}, -time.Hour))
	require.NoError(t, repo.Store("previous_closes", "STALE", map[string]float64{"price": 2}, -time.Hour))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["current_prices"])
	assert.Equal(t, int64(1), results["previous_closes"])
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.Store("current_prices", "ALPHA", map[string]float64{"price": 1}, time.Hour))
	require.NoError(t, repo.Delete("current_prices", "ALPHA"))

	raw, err := repo.GetIfFresh("current_prices", "ALPHA")
	require.NoError(t, err)
	assert.Nil(t, raw)
}
