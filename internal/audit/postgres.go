package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// PostgresStore implements Store against the audit_log table. Immutability
// is enforced at the schema level by a trigger rejecting UPDATE/DELETE
// (see migrations/); this store never issues either statement.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a new connection pool for audit writes,
// kept deliberately separate from the main pgx pool so a saturated audit
// table can never starve variant-loading connections.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// AppendBatch inserts entries in a single transaction so a partial-batch
// failure never leaves the chain with a gap.
func (s *PostgresStore) AppendBatch(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_log (
			event_time, event_type, user_id, user_name, session_id,
			action, success, resource_type, resource_id, client_ip,
			details, previous_hash, entry_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`)
	if err != nil {
		return fmt.Errorf("audit: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit: marshaling details: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			e.EventTime, e.EventType, e.UserID, e.UserName, e.SessionID,
			e.Action, e.Success, e.ResourceType, e.ResourceID, e.ClientIP,
			detailsJSON, e.PreviousHash, e.EntryHash,
		); err != nil {
			return fmt.Errorf("audit: inserting entry: %w", err)
		}
	}

	return tx.Commit()
}

// LastHash returns the entry_hash of the most recently inserted row, the
// anchor new entries chain from. An empty chain returns "", nil.
func (s *PostgresStore) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_hash FROM audit_log ORDER BY event_time DESC, id DESC LIMIT 1
	`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("audit: fetching last hash: %w", err)
	}
	return hash, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
