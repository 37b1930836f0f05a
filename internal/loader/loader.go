// Package loader drives a single VCF ingestion run end to end: hashing
// the input file, journaling it as a load batch, decomposing and
// enriching every record, anonymizing sample identifiers, and upserting
// variants and genotypes behind a shared circuit breaker (C9).
package loader

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/config"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/hapmap"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/qc"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/repository"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/vcfio"
)

// VariantStore persists decomposed variants for one load batch.
type VariantStore interface {
	UpsertBatch(ctx context.Context, loadBatchID string, variants []domain.Variant) error
	DeleteByLoadBatch(ctx context.Context, loadBatchID string) error
}

// GenotypeStore persists per-sample calls for one load batch.
type GenotypeStore interface {
	UpsertBatch(ctx context.Context, loadBatchID string, locus []repository.VariantLocus, genotypes [][]domain.Genotype) error
	DeleteByLoadBatch(ctx context.Context, loadBatchID string) error
}

// LoadBatchJournal enforces the started -> {completed, failed,
// rolled_back} life cycle for one ingestion run (C10).
type LoadBatchJournal interface {
	FindCompletedByMD5(ctx context.Context, fileMD5 string) (*domain.LoadBatch, error)
	Start(ctx context.Context, vcfPath, fileMD5 string, fileSize int64, referenceGenome, previousLoadID string) (string, error)
	Transition(ctx context.Context, loadBatchID string, next domain.LoadStatus, variantsLoaded int64, errorMessage string) error
}

// HapMap3Source builds the in-memory reference lookup used to flag sites
// present in the HapMap3 panel (C6).
type HapMap3Source interface {
	LoadAll(ctx context.Context) (*hapmap.Lookup, error)
}

// SampleAnonymizer resolves a file's raw sample IDs to their deterministic
// anonymous UUIDs (C7).
type SampleAnonymizer interface {
	BulkAnonymize(ctx context.Context, sampleIDs []string, sourceFile, loadBatchID string) (map[string]string, error)
}

// AuditSink records one hash-chained event per state transition (C8).
type AuditSink interface {
	LogEvent(ctx context.Context, entry domain.AuditEntry) error
}

// Loader orchestrates one ingestion run.
type Loader struct {
	variants   VariantStore
	genotypes  GenotypeStore
	batches    LoadBatchJournal
	hapmap3    HapMap3Source
	anonymizer SampleAnonymizer
	audit      AuditSink
	breaker    *gobreaker.CircuitBreaker
	retry      config.RetryConfig
	log        *logrus.Logger
}

// NewLoader wires a Loader's dependencies. breaker is shared across every
// concurrently running Loader so that a store outage trips once for the
// whole process rather than once per load (§4.9's concurrency note).
func NewLoader(
	variants VariantStore,
	genotypes GenotypeStore,
	batches LoadBatchJournal,
	hapmap3 HapMap3Source,
	anonymizer SampleAnonymizer,
	audit AuditSink,
	breaker *gobreaker.CircuitBreaker,
	retry config.RetryConfig,
	log *logrus.Logger,
) *Loader {
	if log == nil {
		log = logrus.New()
	}
	return &Loader{
		variants:   variants,
		genotypes:  genotypes,
		batches:    batches,
		hapmap3:    hapmap3,
		anonymizer: anonymizer,
		audit:      audit,
		breaker:    breaker,
		retry:      retry,
		log:        log,
	}
}

// NewCircuitBreaker builds the single store-write breaker every Loader in
// the process shares, trained on the same trip thresholds the pack's
// external-service breakers use.
func NewCircuitBreaker(log *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "variant-store",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.WithFields(logrus.Fields{"breaker": name, "from": from, "to": to}).Warn("circuit breaker state changed")
			}
		},
	})
}

// Result summarizes a completed or aborted load.
type Result struct {
	LoadBatchID    string
	VariantsLoaded int64
	IsReload       bool
	PreviousLoadID string
}

// Load ingests the VCF at vcfPath under cfg, attributing every audited
// action to actor. It returns once the file is fully loaded, the load is
// cancelled via ctx, or an unrecoverable error occurs; in every case the
// load batch's terminal state and audit trail are left consistent.
func (l *Loader) Load(ctx context.Context, vcfPath string, cfg domain.LoadBatchConfig, actor domain.CurrentActor) (Result, error) {
	// Step 1: hash and size the input file.
	fileMD5, fileSize, err := hashFile(vcfPath)
	if err != nil {
		return Result{}, fmt.Errorf("hashing input file: %w", domain.NewLoaderError(domain.ErrInputMalformed, "could not read input file", err.Error(), ""))
	}

	// Step 2: detect an idempotent reload, then open the load batch row.
	previousLoadID := ""
	if prior, err := l.batches.FindCompletedByMD5(ctx, fileMD5); err == nil && prior != nil {
		previousLoadID = prior.LoadBatchID
	}

	loadBatchID, err := l.batches.Start(ctx, vcfPath, fileMD5, fileSize, cfg.ReferenceGenome, previousLoadID)
	if err != nil {
		return Result{}, fmt.Errorf("starting load batch: %w", err)
	}
	isReload := previousLoadID != ""

	l.log.WithFields(logrus.Fields{
		"load_batch_id": loadBatchID,
		"vcf_path":      vcfPath,
		"file_md5":      fileMD5,
		"is_reload":     isReload,
	}).Info("load batch started")

	// Step 3: audit load_started now that the batch row gives the event a
	// resource_id to reference.
	l.logAudit(ctx, actor, domain.AuditEntry{
		EventType:    "load_started",
		Action:       "load_vcf",
		Success:      true,
		ResourceType: "load_batch",
		ResourceID:   loadBatchID,
		Details: map[string]interface{}{
			"vcf_path":  vcfPath,
			"file_md5":  fileMD5,
			"is_reload": isReload,
		},
	})

	variantsLoaded, err := l.run(ctx, vcfPath, cfg, actor, loadBatchID)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return l.handleCancel(ctx, actor, loadBatchID, variantsLoaded)
		}
		return l.handleFailure(ctx, actor, loadBatchID, variantsLoaded, err)
	}

	return l.handleSuccess(ctx, actor, loadBatchID, previousLoadID, isReload, variantsLoaded)
}

// run drives steps 4-5: initialization, then the batch-by-batch streaming
// parse/enrich/upsert loop. It returns the count of variants written so
// far even on error, so the caller can journal a partial count.
func (l *Loader) run(ctx context.Context, vcfPath string, cfg domain.LoadBatchConfig, actor domain.CurrentActor, loadBatchID string) (int64, error) {
	// Step 4: initialize HapMap3 lookup and sample anonymization.
	var lookup *hapmap.Lookup
	if cfg.HapMap3Enabled && l.hapmap3 != nil {
		var err error
		lookup, err = l.hapmap3.LoadAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("loading hapmap3 reference panel: %w", domain.NewLoaderError(domain.ErrSchemaMismatch, "hapmap3 panel unavailable", err.Error(), loadBatchID))
		}
	}

	reader, err := vcfio.Open(vcfPath, cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("opening vcf: %w", domain.NewLoaderError(domain.ErrInputMalformed, "could not open vcf file", err.Error(), loadBatchID))
	}
	defer reader.Close()

	sampleNames := reader.Header().SampleNames
	anonMap, err := l.anonymizer.BulkAnonymize(ctx, sampleNames, vcfPath, loadBatchID)
	if err != nil {
		return 0, fmt.Errorf("anonymizing sample ids: %w", err)
	}
	anonSampleIDs := make([]string, len(sampleNames))
	for i, name := range sampleNames {
		anonSampleIDs[i] = anonMap[name]
	}

	var variantsLoaded int64

	// Step 5: stream batches until EOF, cancellation, or a hard error.
	for {
		select {
		case <-ctx.Done():
			return variantsLoaded, ctx.Err()
		default:
		}

		batch, err := reader.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return variantsLoaded, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return variantsLoaded, err
			}
			return variantsLoaded, fmt.Errorf("reading vcf batch: %w", domain.NewLoaderError(domain.ErrInputMalformed, "malformed vcf record", err.Error(), loadBatchID))
		}
		if len(batch.Variants) == 0 {
			continue
		}

		n, err := l.processBatch(ctx, batch, anonSampleIDs, lookup, cfg, loadBatchID)
		variantsLoaded += n
		if err != nil {
			return variantsLoaded, err
		}
	}
}

// processBatch enriches one Batch with HapMap3 membership and per-variant
// QC, builds per-sample genotypes, drops variants below the configured
// imputation-score floor, and upserts the survivors through the shared
// circuit breaker with capped exponential backoff.
func (l *Loader) processBatch(ctx context.Context, batch vcfio.Batch, sampleIDs []string, lookup *hapmap.Lookup, cfg domain.LoadBatchConfig, loadBatchID string) (int64, error) {
	genotypesByVariant := vcfio.BuildGenotypes(batch, sampleIDs, cfg.AdjFilter)

	variants := make([]domain.Variant, 0, len(batch.Variants))
	genotypes := make([][]domain.Genotype, 0, len(batch.Variants))
	locus := make([]repository.VariantLocus, 0, len(batch.Variants))

	for i, v := range batch.Variants {
		if v.InfoScore != nil && *v.InfoScore < cfg.MinImputationScore {
			continue
		}

		if lookup != nil {
			if entry, ok := lookup.Match(v.Chrom, v.Pos, v.Ref, v.Alt); ok {
				v.InHapMap3 = true
				v.HapMap3RSID = entry.RSID
			}
		}

		gts := make([]string, 0, len(genotypesByVariant[i]))
		for _, g := range genotypesByVariant[i] {
			gts = append(gts, g.GT)
		}
		counts := qc.CountGenotypes(gts)
		freq := qc.ComputeAlleleFreq(counts)

		v.NCalled, v.NHet, v.NHomRef, v.NHomAlt = counts.NCalled, counts.NHet, counts.NHomRef, counts.NHomAlt
		v.AAF, v.MAF, v.MAC = freq.AAF, freq.MAF, freq.MAC
		v.HWEPValue = hwePValue(counts)

		variants = append(variants, v)
		genotypes = append(genotypes, genotypesByVariant[i])
		locus = append(locus, repository.VariantLocus{Chrom: v.Chrom, Pos: v.Pos, Ref: v.Ref, Alt: v.Alt})
	}

	if len(variants) == 0 {
		return 0, nil
	}

	if err := l.withRetry(ctx, func() error {
		return l.variants.UpsertBatch(ctx, loadBatchID, variants)
	}); err != nil {
		return 0, err
	}

	if err := l.withRetry(ctx, func() error {
		return l.genotypes.UpsertBatch(ctx, loadBatchID, locus, genotypes)
	}); err != nil {
		return 0, err
	}

	return int64(len(variants)), nil
}

// hwePValue guards the Wigginton-Cutler-Abecasis recurrence against sites
// with no called genotypes at all, where the exact test is undefined
// (NaN) rather than 1.0.
func hwePValue(c qc.GenotypeCounts) float64 {
	if c.NHet+c.NHomRef+c.NHomAlt == 0 {
		return math.NaN()
	}
	return qc.HWExactPValue(c.NHet, c.NHomRef, c.NHomAlt)
}

// withRetry executes fn behind the shared circuit breaker, retrying
// failures up to retry.MaxAttempts with a capped exponential backoff.
// Errors are not classified as transient or permanent: every failure
// other than a breaker trip is retried. A breaker trip aborts
// immediately without retrying.
func (l *Loader) withRetry(ctx context.Context, fn func() error) error {
	delay := l.retry.BaseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	factor := l.retry.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	maxAttempts := l.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := l.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("store unavailable: %w", domain.NewLoaderError(domain.ErrStoreTransient, "circuit breaker open", err.Error(), ""))
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * factor)
	}

	return fmt.Errorf("store write failed after %d attempts: %w", maxAttempts, domain.NewLoaderError(domain.ErrStoreTransient, "store write failed", lastErr.Error(), ""))
}

// handleSuccess transitions the batch to completed and emits load_completed.
func (l *Loader) handleSuccess(ctx context.Context, actor domain.CurrentActor, loadBatchID, previousLoadID string, isReload bool, variantsLoaded int64) (Result, error) {
	if err := l.batches.Transition(ctx, loadBatchID, domain.LoadStatusCompleted, variantsLoaded, ""); err != nil {
		return Result{}, fmt.Errorf("marking load batch completed: %w", err)
	}

	l.logAudit(ctx, actor, domain.AuditEntry{
		EventType:    "load_completed",
		Action:       "load_vcf",
		Success:      true,
		ResourceType: "load_batch",
		ResourceID:   loadBatchID,
		Details: map[string]interface{}{
			"variants_loaded": variantsLoaded,
			"is_reload":       isReload,
		},
	})

	l.log.WithFields(logrus.Fields{
		"load_batch_id":   loadBatchID,
		"variants_loaded": variantsLoaded,
	}).Info("load batch completed")

	return Result{LoadBatchID: loadBatchID, VariantsLoaded: variantsLoaded, IsReload: isReload, PreviousLoadID: previousLoadID}, nil
}

// handleFailure transitions the batch to failed, classifies the error for
// the audit record (ErrStoreTransient unless it already carries a
// LoaderError code), and returns the cause unchanged.
func (l *Loader) handleFailure(ctx context.Context, actor domain.CurrentActor, loadBatchID string, variantsLoaded int64, cause error) (Result, error) {
	code := domain.ErrStoreTransient
	var loaderErr *domain.LoaderError
	if errors.As(cause, &loaderErr) {
		code = loaderErr.Code
	}

	if err := l.batches.Transition(ctx, loadBatchID, domain.LoadStatusFailed, variantsLoaded, cause.Error()); err != nil {
		l.log.WithFields(logrus.Fields{"load_batch_id": loadBatchID, "error": err}).Error("failed to journal load failure")
	}

	l.logAudit(ctx, actor, domain.AuditEntry{
		EventType:    "load_failed",
		Action:       "load_vcf",
		Success:      false,
		ResourceType: "load_batch",
		ResourceID:   loadBatchID,
		Details: map[string]interface{}{
			"error_code":      code,
			"variants_loaded": variantsLoaded,
		},
	})

	l.log.WithFields(logrus.Fields{
		"load_batch_id": loadBatchID,
		"error":         cause,
	}).Error("load batch failed")

	return Result{LoadBatchID: loadBatchID, VariantsLoaded: variantsLoaded}, cause
}

// handleCancel rolls back every row this load wrote, transitions to
// rolled_back, and emits load_cancelled.
func (l *Loader) handleCancel(ctx context.Context, actor domain.CurrentActor, loadBatchID string, variantsLoaded int64) (Result, error) {
	// Cleanup runs with a fresh background context: the caller's ctx is
	// already cancelled, and the rollback must still reach the store.
	cleanupCtx := context.Background()

	if err := l.genotypes.DeleteByLoadBatch(cleanupCtx, loadBatchID); err != nil {
		l.log.WithFields(logrus.Fields{"load_batch_id": loadBatchID, "error": err}).Error("failed to roll back genotypes")
	}
	if err := l.variants.DeleteByLoadBatch(cleanupCtx, loadBatchID); err != nil {
		l.log.WithFields(logrus.Fields{"load_batch_id": loadBatchID, "error": err}).Error("failed to roll back variants")
	}

	if err := l.batches.Transition(cleanupCtx, loadBatchID, domain.LoadStatusRolledBack, 0, "cancelled"); err != nil {
		l.log.WithFields(logrus.Fields{"load_batch_id": loadBatchID, "error": err}).Error("failed to journal load cancellation")
	}

	l.logAudit(cleanupCtx, actor, domain.AuditEntry{
		EventType:    "load_cancelled",
		Action:       "load_vcf",
		Success:      false,
		ResourceType: "load_batch",
		ResourceID:   loadBatchID,
		Details: map[string]interface{}{
			"variants_attempted": variantsLoaded,
		},
	})

	l.log.WithFields(logrus.Fields{"load_batch_id": loadBatchID}).Warn("load batch cancelled and rolled back")

	return Result{LoadBatchID: loadBatchID}, domain.NewLoaderError(domain.ErrCancelled, "load cancelled", "", loadBatchID)
}

func (l *Loader) logAudit(ctx context.Context, actor domain.CurrentActor, entry domain.AuditEntry) {
	if l.audit == nil {
		return
	}
	entry.EventTime = time.Now().UTC()
	entry.UserID = actor.UserID
	entry.SessionID = actor.SessionID
	entry.ClientIP = actor.ClientIP
	if err := l.audit.LogEvent(ctx, entry); err != nil {
		l.log.WithFields(logrus.Fields{"event_type": entry.EventType, "error": err}).
			Error("audit log write failed")
	}
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), size, nil
}
