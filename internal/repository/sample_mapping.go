package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// SampleMappingRepository persists the deterministic original-to-anonymous
// sample ID link (C7) and implements internal/phi.Store.
type SampleMappingRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewSampleMappingRepository builds a SampleMappingRepository.
func NewSampleMappingRepository(db *pgxpool.Pool, logger *logrus.Logger) *SampleMappingRepository {
	return &SampleMappingRepository{db: db, log: logger}
}

// GetMapping returns the anonymous UUID already assigned to
// (originalID, sourceFile), if any.
func (r *SampleMappingRepository) GetMapping(ctx context.Context, originalID, sourceFile string) (string, bool, error) {
	var anon string
	err := r.db.QueryRow(ctx, `
		SELECT anonymous_uuid FROM sample_mappings WHERE original_id = $1 AND source_file = $2
	`, originalID, sourceFile).Scan(&anon)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up sample mapping: %w", err)
	}
	return anon, true, nil
}

// GetMappingsBulk returns every existing mapping among originalIDs for
// sourceFile in one round trip; IDs with no existing mapping are simply
// absent from the result.
func (r *SampleMappingRepository) GetMappingsBulk(ctx context.Context, originalIDs []string, sourceFile string) (map[string]string, error) {
	result := make(map[string]string, len(originalIDs))
	if len(originalIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT original_id, anonymous_uuid FROM sample_mappings
		WHERE source_file = $1 AND original_id = ANY($2)
	`, sourceFile, originalIDs)
	if err != nil {
		return nil, fmt.Errorf("bulk looking up sample mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var originalID, anon string
		if err := rows.Scan(&originalID, &anon); err != nil {
			return nil, fmt.Errorf("scanning sample mapping row: %w", err)
		}
		result[originalID] = anon
	}
	return result, rows.Err()
}

// CreateMapping inserts a new mapping, generating the anonymous UUID
// deterministically from (originalID, sourceFile) so repeated loads of
// the same file always produce the same UUID even without a cache hit.
// ON CONFLICT DO UPDATE makes the insert idempotent under concurrent
// loaders racing to create the same mapping.
func (r *SampleMappingRepository) CreateMapping(ctx context.Context, m domain.SampleMapping) (string, error) {
	anon := uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.SourceFile+"\x00"+m.OriginalID)).String()

	var stored string
	err := r.db.QueryRow(ctx, `
		INSERT INTO sample_mappings (
			original_id, source_file, anonymous_uuid, load_batch_id,
			original_id_encrypted, encryption_iv, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (original_id, source_file) DO UPDATE SET
			original_id = EXCLUDED.original_id
		RETURNING anonymous_uuid
	`, m.OriginalID, m.SourceFile, anon, m.LoadBatchID, m.OriginalIDEncrypted, m.EncryptionIV).Scan(&stored)
	if err != nil {
		r.log.WithFields(logrus.Fields{"source_file": m.SourceFile, "error": err}).Error("failed to create sample mapping")
		return "", fmt.Errorf("creating sample mapping: %w", err)
	}
	return stored, nil
}

// LookupOriginal reverses an anonymous UUID back to its mapping row.
func (r *SampleMappingRepository) LookupOriginal(ctx context.Context, anonymousUUID string) (domain.SampleMapping, bool, error) {
	var m domain.SampleMapping
	err := r.db.QueryRow(ctx, `
		SELECT original_id, source_file, anonymous_uuid, load_batch_id,
			original_id_encrypted, encryption_iv, created_at
		FROM sample_mappings WHERE anonymous_uuid = $1
	`, anonymousUUID).Scan(
		&m.OriginalID, &m.SourceFile, &m.AnonymousUUID, &m.LoadBatchID,
		&m.OriginalIDEncrypted, &m.EncryptionIV, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SampleMapping{}, false, nil
	}
	if err != nil {
		return domain.SampleMapping{}, false, fmt.Errorf("reverse looking up sample mapping: %w", err)
	}
	return m, true, nil
}
