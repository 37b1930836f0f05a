package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// GenotypeRepository persists per-sample calls, hash-partitioned by
// sample id in the underlying schema so a single-sample query never scans
// other samples' partitions.
type GenotypeRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewGenotypeRepository builds a GenotypeRepository over an existing pool.
func NewGenotypeRepository(db *pgxpool.Pool, logger *logrus.Logger) *GenotypeRepository {
	return &GenotypeRepository{db: db, log: logger}
}

const insertGenotypeSQL = `
	INSERT INTO genotypes (
		variant_chrom, variant_pos, variant_ref, variant_alt,
		sample_id, gt, gq, dp, ad, dosage, gp, passes_adj, load_batch_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (variant_chrom, variant_pos, variant_ref, variant_alt, sample_id) DO UPDATE SET
		gt          = EXCLUDED.gt,
		gq          = EXCLUDED.gq,
		dp          = EXCLUDED.dp,
		ad          = EXCLUDED.ad,
		dosage      = EXCLUDED.dosage,
		gp          = EXCLUDED.gp,
		passes_adj  = EXCLUDED.passes_adj,
		load_batch_id = EXCLUDED.load_batch_id
`

// UpsertBatch writes one batch of per-sample calls for the variants at
// (chrom, pos, ref, alt) identified inside each domain.Genotype's caller-
// supplied locus fields.
func (r *GenotypeRepository) UpsertBatch(ctx context.Context, loadBatchID string, locus []VariantLocus, genotypes [][]domain.Genotype) error {
	if len(locus) != len(genotypes) {
		return fmt.Errorf("genotype batch: locus/genotype slice length mismatch")
	}

	pgBatch := &pgx.Batch{}
	n := 0
	for i, l := range locus {
		for _, g := range genotypes[i] {
			pgBatch.Queue(insertGenotypeSQL,
				l.Chrom, l.Pos, l.Ref, l.Alt,
				g.SampleID, g.GT, g.GQ, g.DP, g.AD, g.Dosage, g.GP, g.PassesAdj, loadBatchID,
			)
			n++
		}
	}
	if n == 0 {
		return nil
	}

	br := r.db.SendBatch(ctx, pgBatch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			r.log.WithFields(logrus.Fields{"load_batch_id": loadBatchID, "error": err}).Error("genotype upsert failed")
			return fmt.Errorf("upserting genotype batch: %w", err)
		}
	}
	return nil
}

// VariantLocus is the natural key a Genotype is recorded against.
type VariantLocus struct {
	Chrom string
	Pos   uint64
	Ref   string
	Alt   string
}

// DeleteByLoadBatch removes every genotype row written by loadBatchID.
func (r *GenotypeRepository) DeleteByLoadBatch(ctx context.Context, loadBatchID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM genotypes WHERE load_batch_id = $1`, loadBatchID); err != nil {
		return fmt.Errorf("deleting genotypes for load batch: %w", err)
	}
	return nil
}

// CountBySample returns the number of calls recorded for sampleID, used
// by QC reporting and tests.
func (r *GenotypeRepository) CountBySample(ctx context.Context, sampleID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM genotypes WHERE sample_id = $1`, sampleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting genotypes for sample: %w", err)
	}
	return count, nil
}
