package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// LoadBatchRepository journals one ingestion run per row and enforces the
// started -> {completed, failed, rolled_back} state machine (C10).
type LoadBatchRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewLoadBatchRepository builds a LoadBatchRepository over an existing pool.
func NewLoadBatchRepository(db *pgxpool.Pool, logger *logrus.Logger) *LoadBatchRepository {
	return &LoadBatchRepository{db: db, log: logger}
}

// FindCompletedByMD5 returns the most recent completed batch for fileMD5,
// used to detect an idempotent reload.
func (r *LoadBatchRepository) FindCompletedByMD5(ctx context.Context, fileMD5 string) (*domain.LoadBatch, error) {
	var b domain.LoadBatch
	var errorMessage, previousLoadID *string
	err := r.db.QueryRow(ctx, `
		SELECT load_batch_id, vcf_path, file_md5, file_size, reference_genome,
			variants_loaded, status, error_message, is_reload, previous_load_id,
			created_at, started_at, completed_at
		FROM load_batches
		WHERE file_md5 = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1
	`, fileMD5).Scan(
		&b.LoadBatchID, &b.VCFPath, &b.FileMD5, &b.FileSize, &b.ReferenceGenome,
		&b.VariantsLoaded, &b.Status, &errorMessage, &b.IsReload, &previousLoadID,
		&b.CreatedAt, &b.StartedAt, &b.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding completed load batch by md5: %w", err)
	}
	if errorMessage != nil {
		b.ErrorMessage = *errorMessage
	}
	if previousLoadID != nil {
		b.PreviousLoadID = *previousLoadID
	}
	return &b, nil
}

// Start inserts a new load_batches row with status=started and returns the
// generated load_batch_id.
func (r *LoadBatchRepository) Start(ctx context.Context, vcfPath, fileMD5 string, fileSize int64, referenceGenome string, previousLoadID string) (string, error) {
	loadBatchID := uuid.New().String()
	isReload := previousLoadID != ""

	_, err := r.db.Exec(ctx, `
		INSERT INTO load_batches (
			load_batch_id, vcf_path, file_md5, file_size, reference_genome,
			variants_loaded, status, is_reload, previous_load_id, created_at, started_at
		) VALUES ($1, $2, $3, $4, $5, 0, 'started', $6, $7, now(), now())
	`, loadBatchID, vcfPath, fileMD5, fileSize, referenceGenome, isReload, nullableString(previousLoadID))
	if err != nil {
		return "", fmt.Errorf("starting load batch: %w", err)
	}
	return loadBatchID, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Transition moves loadBatchID to next, rejecting anything not legal
// under domain.LoadStatus.ValidTransition.
func (r *LoadBatchRepository) Transition(ctx context.Context, loadBatchID string, next domain.LoadStatus, variantsLoaded int64, errorMessage string) error {
	var current domain.LoadStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM load_batches WHERE load_batch_id = $1`, loadBatchID).Scan(&current)
	if err != nil {
		return fmt.Errorf("reading current load batch status: %w", err)
	}

	if !current.ValidTransition(next) {
		return domain.NewLoaderError(domain.ErrInvalidTransition,
			fmt.Sprintf("cannot transition load batch from %s to %s", current, next), "", loadBatchID)
	}

	_, err = r.db.Exec(ctx, `
		UPDATE load_batches
		SET status = $2, variants_loaded = $3, error_message = $4, completed_at = now()
		WHERE load_batch_id = $1
	`, loadBatchID, string(next), variantsLoaded, nullableString(errorMessage))
	if err != nil {
		return fmt.Errorf("transitioning load batch: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"load_batch_id": loadBatchID,
		"from":          current,
		"to":            next,
	}).Info("load batch transitioned")

	return nil
}

// Get retrieves a load batch by ID.
func (r *LoadBatchRepository) Get(ctx context.Context, loadBatchID string) (*domain.LoadBatch, error) {
	var b domain.LoadBatch
	var completedAt *time.Time
	var errorMessage, previousLoadID *string
	err := r.db.QueryRow(ctx, `
		SELECT load_batch_id, vcf_path, file_md5, file_size, reference_genome,
			variants_loaded, status, error_message, is_reload, previous_load_id,
			created_at, started_at, completed_at
		FROM load_batches WHERE load_batch_id = $1
	`, loadBatchID).Scan(
		&b.LoadBatchID, &b.VCFPath, &b.FileMD5, &b.FileSize, &b.ReferenceGenome,
		&b.VariantsLoaded, &b.Status, &errorMessage, &b.IsReload, &previousLoadID,
		&b.CreatedAt, &b.StartedAt, &completedAt,
	)
	if errorMessage != nil {
		b.ErrorMessage = *errorMessage
	}
	if previousLoadID != nil {
		b.PreviousLoadID = *previousLoadID
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load batch not found: %w", domain.NewLoaderError(domain.ErrNotFound, "load batch not found", "", loadBatchID))
	}
	if err != nil {
		return nil, fmt.Errorf("getting load batch: %w", err)
	}
	b.CompletedAt = completedAt
	return &b, nil
}
