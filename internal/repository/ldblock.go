package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/refdata"
)

// LDBlockRepository persists LD-block BED rows. No LD-assignment logic
// lives here or anywhere in the ingestion core — it is a plain lookup
// table loader feeding whatever downstream PRS tooling needs block
// membership.
type LDBlockRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewLDBlockRepository builds an LDBlockRepository over an existing pool.
func NewLDBlockRepository(db *pgxpool.Pool, logger *logrus.Logger) *LDBlockRepository {
	return &LDBlockRepository{db: db, log: logger}
}

const insertLDBlockSQL = `
	INSERT INTO ld_blocks (chrom, block_range, block_id, n_snps_1kg)
	VALUES ($1, int8range($2, $3), $4, $5)
`

// ImportBatch bulk-loads LD-block rows parsed from a BED file.
func (r *LDBlockRepository) ImportBatch(ctx context.Context, blocks []refdata.LDBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range blocks {
		batch.Queue(insertLDBlockSQL, b.Chrom, b.Start, b.End, b.BlockID, b.NSNP1KG)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			r.log.WithFields(logrus.Fields{"error": err}).Error("ld block import failed")
			return fmt.Errorf("importing ld block: %w", err)
		}
	}
	return nil
}

// FindContaining returns the LD block, if any, whose range contains
// (chrom, pos).
func (r *LDBlockRepository) FindContaining(ctx context.Context, chrom string, pos int64) (*refdata.LDBlock, error) {
	var b refdata.LDBlock
	var lower, upper int64
	err := r.db.QueryRow(ctx, `
		SELECT chrom, lower(block_range), upper(block_range), block_id, n_snps_1kg
		FROM ld_blocks
		WHERE chrom = $1 AND block_range @> $2::int8
		LIMIT 1
	`, chrom, pos).Scan(&b.Chrom, &lower, &upper, &b.BlockID, &b.NSNP1KG)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("finding containing ld block: %w", err)
	}
	b.Start, b.End = lower, upper
	return &b, nil
}
