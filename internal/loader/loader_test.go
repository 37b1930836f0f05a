package loader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/config"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/repository"
)

const testVCF = "##fileformat=VCFv4.2\n" +
	"##INFO=<ID=AF,Number=A,Type=Float,Description=\"Allele Frequency\">\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\n" +
	"1\t100\trs1\tA\tG\t.\tPASS\tAF=0.2\tGT:GQ:DP\t0/1:40:30\t0/0:40:30\n" +
	"1\t200\trs2\tA\tC,T\t.\tPASS\tAF=0.4\tGT:GQ:DP\t1/2:40:30\t0/1:40:30\n"

func writeTestVCF(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.vcf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeVariantStore struct {
	mu       sync.Mutex
	upserted []domain.Variant
	deleted  []string
	failWith error
}

func (f *fakeVariantStore) UpsertBatch(ctx context.Context, loadBatchID string, variants []domain.Variant) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, variants...)
	return nil
}

func (f *fakeVariantStore) DeleteByLoadBatch(ctx context.Context, loadBatchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, loadBatchID)
	return nil
}

type fakeGenotypeStore struct {
	mu       sync.Mutex
	upserted int
	deleted  []string
}

func (f *fakeGenotypeStore) UpsertBatch(ctx context.Context, loadBatchID string, locus []repository.VariantLocus, genotypes [][]domain.Genotype) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range genotypes {
		f.upserted += len(g)
	}
	return nil
}

func (f *fakeGenotypeStore) DeleteByLoadBatch(ctx context.Context, loadBatchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, loadBatchID)
	return nil
}

type fakeJournal struct {
	mu          sync.Mutex
	started     []string
	transitions []domain.LoadStatus
	nextID      string
}

func (f *fakeJournal) FindCompletedByMD5(ctx context.Context, fileMD5 string) (*domain.LoadBatch, error) {
	return nil, nil
}

func (f *fakeJournal) Start(ctx context.Context, vcfPath, fileMD5 string, fileSize int64, referenceGenome, previousLoadID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	if id == "" {
		id = "batch-1"
	}
	f.started = append(f.started, id)
	return id, nil
}

func (f *fakeJournal) Transition(ctx context.Context, loadBatchID string, next domain.LoadStatus, variantsLoaded int64, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, next)
	return nil
}

type fakeAnonymizer struct{}

func (fakeAnonymizer) BulkAnonymize(ctx context.Context, sampleIDs []string, sourceFile, loadBatchID string) (map[string]string, error) {
	out := make(map[string]string, len(sampleIDs))
	for _, id := range sampleIDs {
		out[id] = "anon-" + id
	}
	return out, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []domain.AuditEntry
}

func (f *fakeAudit) LogEvent(ctx context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, entry)
	return nil
}

func (f *fakeAudit) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType
	}
	return out
}

func newTestLoader(variants VariantStore, genotypes GenotypeStore, journal LoadBatchJournal, auditSink AuditSink) *Loader {
	log := silentLogger()
	breaker := NewCircuitBreaker(log)
	retry := config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, BackoffFactor: 2}
	return NewLoader(variants, genotypes, journal, nil, fakeAnonymizer{}, auditSink, breaker, retry, log)
}

func TestLoadHappyPathUpsertsDecomposedVariantsAndGenotypes(t *testing.T) {
	path := writeTestVCF(t, testVCF)

	variants := &fakeVariantStore{}
	genotypes := &fakeGenotypeStore{}
	journal := &fakeJournal{}
	auditSink := &fakeAudit{}
	l := newTestLoader(variants, genotypes, journal, auditSink)

	cfg := domain.DefaultLoadBatchConfig()
	cfg.HapMap3Enabled = false

	result, err := l.Load(context.Background(), path, cfg, domain.CurrentActor{UserID: "tester"})
	require.NoError(t, err)

	// Line 1 is biallelic (1 variant), line 2 has 2 ALTs (2 variants): 3 total.
	assert.EqualValues(t, 3, result.VariantsLoaded)
	assert.Len(t, variants.upserted, 3)
	assert.Equal(t, 6, genotypes.upserted) // 3 variants * 2 samples

	assert.Equal(t, []domain.LoadStatus{domain.LoadStatusCompleted}, journal.transitions)
	assert.Contains(t, auditSink.eventTypes(), "load_started")
	assert.Contains(t, auditSink.eventTypes(), "load_completed")
}

func TestLoadComputesPerVariantQC(t *testing.T) {
	path := writeTestVCF(t, testVCF)

	variants := &fakeVariantStore{}
	genotypes := &fakeGenotypeStore{}
	journal := &fakeJournal{}
	auditSink := &fakeAudit{}
	l := newTestLoader(variants, genotypes, journal, auditSink)

	cfg := domain.DefaultLoadBatchConfig()
	cfg.HapMap3Enabled = false

	_, err := l.Load(context.Background(), path, cfg, domain.CurrentActor{})
	require.NoError(t, err)

	require.Len(t, variants.upserted, 3)
	first := variants.upserted[0]
	// Site 1: "0/1" and "0/0" -> 2 called, 1 het, 1 hom-ref, 0 hom-alt.
	assert.Equal(t, 2, first.NCalled)
	assert.Equal(t, 1, first.NHet)
	assert.Equal(t, 1, first.NHomRef)
	assert.Equal(t, 0, first.NHomAlt)
}

func TestLoadCancellationRollsBackAndMarksRolledBack(t *testing.T) {
	path := writeTestVCF(t, testVCF)

	variants := &fakeVariantStore{}
	genotypes := &fakeGenotypeStore{}
	journal := &fakeJournal{}
	auditSink := &fakeAudit{}
	l := newTestLoader(variants, genotypes, journal, auditSink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := domain.DefaultLoadBatchConfig()
	cfg.HapMap3Enabled = false

	_, err := l.Load(ctx, path, cfg, domain.CurrentActor{})
	require.Error(t, err)

	var loaderErr *domain.LoaderError
	require.ErrorAs(t, err, &loaderErr)
	assert.Equal(t, domain.ErrCancelled, loaderErr.Code)

	assert.Equal(t, []domain.LoadStatus{domain.LoadStatusRolledBack}, journal.transitions)
	assert.Len(t, variants.deleted, 1)
	assert.Len(t, genotypes.deleted, 1)
	assert.Contains(t, auditSink.eventTypes(), "load_cancelled")
}

func TestLoadStoreFailureMarksFailed(t *testing.T) {
	path := writeTestVCF(t, testVCF)

	variants := &fakeVariantStore{failWith: assert.AnError}
	genotypes := &fakeGenotypeStore{}
	journal := &fakeJournal{}
	auditSink := &fakeAudit{}
	l := newTestLoader(variants, genotypes, journal, auditSink)

	cfg := domain.DefaultLoadBatchConfig()
	cfg.HapMap3Enabled = false

	_, err := l.Load(context.Background(), path, cfg, domain.CurrentActor{})
	require.Error(t, err)

	assert.Equal(t, []domain.LoadStatus{domain.LoadStatusFailed}, journal.transitions)
	assert.Contains(t, auditSink.eventTypes(), "load_failed")
}

func TestLoadDropsVariantsBelowMinImputationScore(t *testing.T) {
	vcf := "##fileformat=VCFv4.2\n" +
		"##source=minimac4\n" +
		"##INFO=<ID=R2,Number=1,Type=Float,Description=\"Imputation R2\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n" +
		"1\t100\trs1\tA\tG\t.\tPASS\tR2=0.1\tGT\t0/1\n" +
		"1\t200\trs2\tA\tG\t.\tPASS\tR2=0.9\tGT\t0/1\n"
	path := writeTestVCF(t, vcf)

	variants := &fakeVariantStore{}
	genotypes := &fakeGenotypeStore{}
	journal := &fakeJournal{}
	auditSink := &fakeAudit{}
	l := newTestLoader(variants, genotypes, journal, auditSink)

	cfg := domain.DefaultLoadBatchConfig()
	cfg.HapMap3Enabled = false
	cfg.MinImputationScore = 0.3

	result, err := l.Load(context.Background(), path, cfg, domain.CurrentActor{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.VariantsLoaded)
	require.Len(t, variants.upserted, 1)
	assert.Equal(t, uint64(200), variants.upserted[0].Pos)
}

func TestWithRetryStopsImmediatelyWhenBreakerOpen(t *testing.T) {
	log := silentLogger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.Requests >= 1 },
	})
	l := &Loader{
		breaker: breaker,
		retry:   config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2},
		log:     log,
	}

	// Trip the breaker with one failing call.
	_ = l.withRetry(context.Background(), func() error { return assert.AnError })

	attempts := 0
	err := l.withRetry(context.Background(), func() error {
		attempts++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, attempts, "breaker should short-circuit before fn runs again")
}
