package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/hapmap"
)

// HapMap3Repository persists the reference panel table and builds the
// in-memory hapmap.Lookup used during a load (the lookup itself is
// immutable once built, per the concurrency model).
type HapMap3Repository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewHapMap3Repository builds a HapMap3Repository over an existing pool.
func NewHapMap3Repository(db *pgxpool.Pool, logger *logrus.Logger) *HapMap3Repository {
	return &HapMap3Repository{db: db, log: logger}
}

// LoadAll reads every reference-panel row into memory to build a
// hapmap.Lookup, the shape C6 expects.
func (r *HapMap3Repository) LoadAll(ctx context.Context) (*hapmap.Lookup, error) {
	rows, err := r.db.Query(ctx, `SELECT panel_name, rsid, chrom, position, a1, a2 FROM hapmap3_entries`)
	if err != nil {
		return nil, fmt.Errorf("loading hapmap3 entries: %w", err)
	}
	defer rows.Close()

	var lookupRows []struct {
		Chrom string
		Pos   uint64
		RSID  string
		A1    string
		A2    string
	}
	for rows.Next() {
		var e domain.HapMap3Entry
		if err := rows.Scan(&e.PanelName, &e.RSID, &e.Chrom, &e.Position, &e.A1, &e.A2); err != nil {
			return nil, fmt.Errorf("scanning hapmap3 row: %w", err)
		}
		lookupRows = append(lookupRows, struct {
			Chrom string
			Pos   uint64
			RSID  string
			A1    string
			A2    string
		}{Chrom: e.Chrom, Pos: e.Position, RSID: e.RSID, A1: e.A1, A2: e.A2})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hapmap3 rows: %w", err)
	}

	return hapmap.NewLookup(lookupRows), nil
}

const insertHapMap3EntrySQL = `
	INSERT INTO hapmap3_entries (panel_name, rsid, chrom, position, a1, a2)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (panel_name, chrom, position) DO UPDATE SET
		rsid = EXCLUDED.rsid, a1 = EXCLUDED.a1, a2 = EXCLUDED.a2
`

// ImportBatch bulk-loads reference-panel rows, e.g. from a HapMap3 TSV
// file ahead of a VCF ingestion run.
func (r *HapMap3Repository) ImportBatch(ctx context.Context, entries []domain.HapMap3Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertHapMap3EntrySQL, e.PanelName, e.RSID, e.Chrom, e.Position, e.A1, e.A2)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			r.log.WithFields(logrus.Fields{"error": err}).Error("hapmap3 import failed")
			return fmt.Errorf("importing hapmap3 entry: %w", err)
		}
	}
	return nil
}
