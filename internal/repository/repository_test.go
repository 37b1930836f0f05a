package repository

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/database"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, thisFile, _, _ := runtime.Caller(0)
	migrationsPath := filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := database.NewMigrationRunner(connStr, migrationsPath, logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))
	t.Cleanup(func() { runner.Close() })

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestVariantUpsertMergesNonNullFields(t *testing.T) {
	pool := setupTestPool(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	repo := NewVariantRepository(pool, logger)
	ctx := context.Background()

	first := domain.Variant{Chrom: "1", Pos: 100, Ref: "A", Alt: "G", Gene: "GENE1", Impact: "HIGH"}
	require.NoError(t, repo.UpsertBatch(ctx, "batch-1", []domain.Variant{first}))

	afGnomad := 0.05
	second := domain.Variant{Chrom: "1", Pos: 100, Ref: "A", Alt: "G", AFGnomAD: &afGnomad}
	require.NoError(t, repo.UpsertBatch(ctx, "batch-2", []domain.Variant{second}))

	stored, err := repo.GetByLocus(ctx, "1", 100, "A", "G")
	require.NoError(t, err)
	require.Equal(t, "GENE1", stored.Gene, "gene from the first insert must survive a merge that carries no gene")
	require.Equal(t, "HIGH", stored.Impact)
	require.NotNil(t, stored.AFGnomAD)
	require.InDelta(t, 0.05, *stored.AFGnomAD, 1e-9)
}

func TestLoadBatchTransitionRejectsFromTerminal(t *testing.T) {
	pool := setupTestPool(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewLoadBatchRepository(pool, logger)
	ctx := context.Background()

	id, err := repo.Start(ctx, "/tmp/x.vcf", "deadbeef", 100, "GRCh38", "")
	require.NoError(t, err)

	require.NoError(t, repo.Transition(ctx, id, domain.LoadStatusCompleted, 10, ""))

	err = repo.Transition(ctx, id, domain.LoadStatusFailed, 10, "boom")
	require.Error(t, err, "a completed batch must never transition again")
}

func TestLoadBatchFindCompletedByMD5(t *testing.T) {
	pool := setupTestPool(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewLoadBatchRepository(pool, logger)
	ctx := context.Background()

	id, err := repo.Start(ctx, "/tmp/x.vcf", "md5-abc", 100, "GRCh38", "")
	require.NoError(t, err)
	require.NoError(t, repo.Transition(ctx, id, domain.LoadStatusCompleted, 5, ""))

	found, err := repo.FindCompletedByMD5(ctx, "md5-abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, id, found.LoadBatchID)

	notFound, err := repo.FindCompletedByMD5(ctx, "nonexistent")
	require.NoError(t, err)
	require.Nil(t, notFound)
}

func TestSampleMappingDeterministicAcrossCalls(t *testing.T) {
	pool := setupTestPool(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewSampleMappingRepository(pool, logger)
	ctx := context.Background()

	m := domain.SampleMapping{OriginalID: "NA12878", SourceFile: "cohort1.vcf"}
	uuid1, err := repo.CreateMapping(ctx, m)
	require.NoError(t, err)

	uuid2, err := repo.CreateMapping(ctx, m)
	require.NoError(t, err)
	require.Equal(t, uuid1, uuid2, "re-creating the same mapping must be idempotent")

	got, found, err := repo.GetMapping(ctx, "NA12878", "cohort1.vcf")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uuid1, got)
}
