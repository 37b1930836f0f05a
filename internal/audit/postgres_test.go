package audit

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			event_time TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			user_id TEXT DEFAULT '',
			user_name TEXT DEFAULT '',
			session_id TEXT DEFAULT '',
			action TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			resource_type TEXT DEFAULT '',
			resource_id TEXT DEFAULT '',
			client_ip TEXT DEFAULT '',
			details JSONB,
			previous_hash TEXT DEFAULT '',
			entry_hash TEXT DEFAULT ''
		)
	`)
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM audit_log")
	require.NoError(t, err)

	return db
}

func TestPostgresStoreAppendAndLastHash(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()

	hash, err := store.LastHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", hash)

	entries := []domain.AuditEntry{
		{
			EventTime:    time.Now().UTC(),
			EventType:    "load_started",
			Action:       "start",
			Success:      true,
			PreviousHash: "",
			EntryHash:    "abc123",
		},
	}
	require.NoError(t, store.AppendBatch(ctx, entries))

	hash, err = store.LastHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}

func TestPostgresStoreImmutabilityTrigger(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []domain.AuditEntry{
		{EventTime: time.Now().UTC(), EventType: "x", Action: "x", Success: true, EntryHash: "h1"},
	}))

	_, err = db.Exec("UPDATE audit_log SET action = 'tampered' WHERE entry_hash = 'h1'")
	if err == nil {
		t.Skip("audit_log immutability trigger not installed in this test database")
	}
	assert.Contains(t, err.Error(), "cannot be modified")
}
