// Package repository persists decomposed variants, genotypes, HapMap3
// reference rows, sample-ID mappings, and the load-batch journal against
// PostgreSQL via pgx/v5.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// VariantRepository persists decomposed, normalized variants with an
// upsert keyed on (chrom, pos, ref, alt); a conflict merges only the
// non-null incoming annotation/imputation/HapMap3 fields so a reload
// from a file with fewer fields never erases richer data already stored.
type VariantRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewVariantRepository builds a VariantRepository over an existing pool.
func NewVariantRepository(db *pgxpool.Pool, logger *logrus.Logger) *VariantRepository {
	return &VariantRepository{db: db, log: logger}
}

// UpsertBatch inserts or merges a batch of variants belonging to
// loadBatchID in one round trip.
func (r *VariantRepository) UpsertBatch(ctx context.Context, loadBatchID string, variants []domain.Variant) error {
	if len(variants) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, v := range variants {
		batch.Queue(upsertVariantSQL,
			v.Chrom, v.Pos, v.Ref, v.Alt, v.RSID, v.Filter,
			v.Gene, v.Consequence, v.Impact, v.HGVSc, v.HGVSp, v.Transcript, v.ClinVarSig, v.AFGnomAD,
			v.InfoScore, v.ImputationR2, v.IsImputed, v.IsTyped,
			v.InHapMap3, v.HapMap3RSID,
			v.NCalled, v.NHet, v.NHomRef, v.NHomAlt, v.AAF, v.MAF, v.MAC, v.HWEPValue,
			loadBatchID,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			r.log.WithFields(logrus.Fields{
				"load_batch_id": loadBatchID,
				"error":         err,
			}).Error("variant upsert failed")
			return fmt.Errorf("upserting variant batch: %w", err)
		}
	}

	return nil
}

const upsertVariantSQL = `
	INSERT INTO variants (
		chrom, pos, ref, alt, rsid, filter,
		gene, consequence, impact, hgvsc, hgvsp, transcript, clinvar_sig, af_gnomad,
		info_score, imputation_r2, is_imputed, is_typed,
		in_hapmap3, hapmap3_rsid,
		n_called, n_het, n_hom_ref, n_hom_alt, aaf, maf, mac, hwe_pvalue,
		load_batch_id, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18,
		$19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28,
		$29, now(), now()
	)
	ON CONFLICT (chrom, pos, ref, alt) DO UPDATE SET
		rsid          = COALESCE(EXCLUDED.rsid, variants.rsid),
		filter        = COALESCE(NULLIF(EXCLUDED.filter, ''), variants.filter),
		gene          = COALESCE(NULLIF(EXCLUDED.gene, ''), variants.gene),
		consequence   = COALESCE(NULLIF(EXCLUDED.consequence, ''), variants.consequence),
		impact        = COALESCE(NULLIF(EXCLUDED.impact, ''), variants.impact),
		hgvsc         = COALESCE(NULLIF(EXCLUDED.hgvsc, ''), variants.hgvsc),
		hgvsp         = COALESCE(NULLIF(EXCLUDED.hgvsp, ''), variants.hgvsp),
		transcript    = COALESCE(NULLIF(EXCLUDED.transcript, ''), variants.transcript),
		clinvar_sig   = COALESCE(NULLIF(EXCLUDED.clinvar_sig, ''), variants.clinvar_sig),
		af_gnomad     = COALESCE(EXCLUDED.af_gnomad, variants.af_gnomad),
		info_score    = COALESCE(EXCLUDED.info_score, variants.info_score),
		imputation_r2 = COALESCE(EXCLUDED.imputation_r2, variants.imputation_r2),
		is_imputed    = EXCLUDED.is_imputed OR variants.is_imputed,
		is_typed      = EXCLUDED.is_typed OR variants.is_typed,
		in_hapmap3    = EXCLUDED.in_hapmap3 OR variants.in_hapmap3,
		hapmap3_rsid  = COALESCE(NULLIF(EXCLUDED.hapmap3_rsid, ''), variants.hapmap3_rsid),
		-- QC columns are a complete per-variant summary recomputed from
		-- every genotype call seen in the incoming file, not incremental
		-- data, so a reload overwrites them outright instead of merging.
		n_called      = EXCLUDED.n_called,
		n_het         = EXCLUDED.n_het,
		n_hom_ref     = EXCLUDED.n_hom_ref,
		n_hom_alt     = EXCLUDED.n_hom_alt,
		aaf           = EXCLUDED.aaf,
		maf           = EXCLUDED.maf,
		mac           = EXCLUDED.mac,
		hwe_pvalue    = EXCLUDED.hwe_pvalue,
		load_batch_id = EXCLUDED.load_batch_id,
		updated_at    = now()
`

// GetByLocus retrieves a single variant by its natural key.
func (r *VariantRepository) GetByLocus(ctx context.Context, chrom string, pos uint64, ref, alt string) (*domain.Variant, error) {
	query := `
		SELECT chrom, pos, ref, alt, rsid, filter,
			gene, consequence, impact, hgvsc, hgvsp, transcript, clinvar_sig, af_gnomad,
			info_score, imputation_r2, is_imputed, is_typed,
			in_hapmap3, hapmap3_rsid,
			n_called, n_het, n_hom_ref, n_hom_alt, aaf, maf, mac, hwe_pvalue,
			created_at, updated_at
		FROM variants
		WHERE chrom = $1 AND pos = $2 AND ref = $3 AND alt = $4
	`

	var v domain.Variant
	err := r.db.QueryRow(ctx, query, chrom, pos, ref, alt).Scan(
		&v.Chrom, &v.Pos, &v.Ref, &v.Alt, &v.RSID, &v.Filter,
		&v.Gene, &v.Consequence, &v.Impact, &v.HGVSc, &v.HGVSp, &v.Transcript, &v.ClinVarSig, &v.AFGnomAD,
		&v.InfoScore, &v.ImputationR2, &v.IsImputed, &v.IsTyped,
		&v.InHapMap3, &v.HapMap3RSID,
		&v.NCalled, &v.NHet, &v.NHomRef, &v.NHomAlt, &v.AAF, &v.MAF, &v.MAC, &v.HWEPValue,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("variant not found: %w", domain.NewLoaderError(domain.ErrNotFound, "variant not found", "", ""))
		}
		r.log.WithFields(logrus.Fields{"chrom": chrom, "pos": pos, "error": err}).Error("failed to get variant")
		return nil, fmt.Errorf("getting variant: %w", err)
	}
	return &v, nil
}

// CountByLoadBatch returns how many variant rows carry loadBatchID,
// used to verify the reload-idempotence invariant after a load completes.
func (r *VariantRepository) CountByLoadBatch(ctx context.Context, loadBatchID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM variants WHERE load_batch_id = $1`, loadBatchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting variants for load batch: %w", err)
	}
	return count, nil
}

// DeleteByLoadBatch removes every variant row written by loadBatchID,
// used on the rollback/cancellation path.
func (r *VariantRepository) DeleteByLoadBatch(ctx context.Context, loadBatchID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM variants WHERE load_batch_id = $1`, loadBatchID); err != nil {
		return fmt.Errorf("deleting variants for load batch: %w", err)
	}
	return nil
}
