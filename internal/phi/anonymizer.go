// Package phi anonymizes VCF sample identifiers with a deterministic,
// audited original-to-UUID mapping, optionally encrypting the original
// identifier at rest (C7).
package phi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// Store persists and retrieves sample-ID mappings. Implementations talk
// to the pgx-based main store (see internal/repository).
type Store interface {
	GetMapping(ctx context.Context, originalID, sourceFile string) (string, bool, error)
	GetMappingsBulk(ctx context.Context, originalIDs []string, sourceFile string) (map[string]string, error)
	CreateMapping(ctx context.Context, m domain.SampleMapping) (string, error)
	LookupOriginal(ctx context.Context, anonymousUUID string) (domain.SampleMapping, bool, error)
}

// AuditSink receives one audit event per reverse-lookup attempt, hit or
// miss, and per bulk-anonymize call that reaches the persistent store; a
// call answered entirely from the local or cross-load cache is not audited.
type AuditSink interface {
	LogEvent(ctx context.Context, entry domain.AuditEntry) error
}

// reIdentificationWarning documents that sample-ID anonymization alone
// does not make genomic data non-identifiable; it is attached to every
// bulk-anonymize audit event's details.risk_note.
const reIdentificationWarning = "genomic data may remain re-identifiable even after sample ID anonymization; " +
	"consider Expert Determination rather than Safe Harbor de-identification for DNA sequence data"

// Anonymizer provides deterministic original->anonymous UUID mapping with
// an audited reverse lookup, backed by a two-layer cache in front of a
// persistent Store.
type Anonymizer struct {
	store      Store
	audit      AuditSink
	encryptor  *Encryptor
	local      *localCache
	cross      *crossLoadCache
	limiter    *rate.Limiter
	requireEnc bool
}

// Config parameterizes an Anonymizer.
type Config struct {
	Store              Store
	Audit              AuditSink
	Encryptor          *Encryptor // nil disables encryption
	CrossLoadCache     *crossLoadCache // nil disables the Redis layer
	LocalCacheSize     int
	ReverseLookupRPS   float64
	RequireEncryption  bool
}

// New builds an Anonymizer. The reverse-lookup rate limiter defaults to
// 5 requests/sec if ReverseLookupRPS is zero.
func New(cfg Config) (*Anonymizer, error) {
	local, err := newLocalCache(cfg.LocalCacheSize)
	if err != nil {
		return nil, err
	}

	rps := cfg.ReverseLookupRPS
	if rps <= 0 {
		rps = 5
	}

	return &Anonymizer{
		store:      cfg.Store,
		audit:      cfg.Audit,
		encryptor:  cfg.Encryptor,
		local:      local,
		cross:      cfg.CrossLoadCache,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		requireEnc: cfg.RequireEncryption,
	}, nil
}

// Anonymize returns the deterministic anonymous UUID for (originalID,
// sourceFile), creating a new mapping on first sight.
func (a *Anonymizer) Anonymize(ctx context.Context, originalID, sourceFile, loadBatchID string) (string, error) {
	result, err := a.BulkAnonymize(ctx, []string{originalID}, sourceFile, loadBatchID)
	if err != nil {
		return "", err
	}
	return result[originalID], nil
}

// BulkAnonymize anonymizes many sample IDs in one pass, consulting the
// local cache, then the cross-load cache, then the persistent store, and
// only creating new mappings for IDs unseen at every layer.
func (a *Anonymizer) BulkAnonymize(ctx context.Context, sampleIDs []string, sourceFile, loadBatchID string) (map[string]string, error) {
	result := make(map[string]string, len(sampleIDs))
	var toResolve []string

	for _, id := range sampleIDs {
		k := cacheKey{originalID: id, sourceFile: sourceFile}
		if uid, ok := a.local.get(k); ok {
			result[id] = uid
			continue
		}
		toResolve = append(toResolve, id)
	}

	if len(toResolve) == 0 {
		return result, nil
	}

	var stillUnresolved []string
	if a.cross != nil {
		for _, id := range toResolve {
			k := cacheKey{originalID: id, sourceFile: sourceFile}
			if uid, ok, err := a.cross.get(ctx, k); err == nil && ok {
				result[id] = uid
				a.local.put(k, uid)
				continue
			}
			stillUnresolved = append(stillUnresolved, id)
		}
	} else {
		stillUnresolved = toResolve
	}

	if len(stillUnresolved) == 0 {
		return result, nil
	}

	existing, err := a.store.GetMappingsBulk(ctx, stillUnresolved, sourceFile)
	if err != nil {
		return nil, fmt.Errorf("phi: bulk lookup: %w", err)
	}

	var toCreate []string
	for _, id := range stillUnresolved {
		if uid, ok := existing[id]; ok {
			result[id] = uid
			a.cacheWrite(ctx, cacheKey{originalID: id, sourceFile: sourceFile}, uid)
			continue
		}
		toCreate = append(toCreate, id)
	}

	for _, id := range toCreate {
		uid, err := a.createMapping(ctx, id, sourceFile, loadBatchID)
		if err != nil {
			return nil, err
		}
		result[id] = uid
		a.cacheWrite(ctx, cacheKey{originalID: id, sourceFile: sourceFile}, uid)
	}

	if a.audit != nil {
		a.audit.LogEvent(ctx, domain.AuditEntry{
			EventTime: time.Now().UTC(),
			EventType: "phi_bulk_anonymize",
			Action:    "bulk_anonymize",
			Success:   true,
			Details: map[string]interface{}{
				"sample_count": len(sampleIDs),
				"created":      len(toCreate),
				"risk_note":    reIdentificationWarning,
			},
		})
	}

	return result, nil
}

func (a *Anonymizer) cacheWrite(ctx context.Context, k cacheKey, uuid string) {
	a.local.put(k, uuid)
	if a.cross != nil {
		a.cross.set(ctx, k, uuid)
	}
}

func (a *Anonymizer) createMapping(ctx context.Context, originalID, sourceFile, loadBatchID string) (string, error) {
	m := domain.SampleMapping{
		OriginalID:  originalID,
		SourceFile:  sourceFile,
		LoadBatchID: loadBatchID,
	}

	if a.encryptor != nil {
		ciphertext, nonce, err := a.encryptor.Encrypt(originalID)
		if err != nil {
			if a.requireEnc {
				return "", domain.NewLoaderError(domain.ErrPHIEncryption, "encryption required but failed", err.Error(), loadBatchID)
			}
		} else {
			m.OriginalIDEncrypted = ciphertext
			m.EncryptionIV = nonce
		}
	} else if a.requireEnc {
		return "", domain.NewLoaderError(domain.ErrPHIEncryption, "encryption required but no encryptor configured", "", loadBatchID)
	}

	return a.store.CreateMapping(ctx, m)
}

// ReverseLookup resolves an anonymous UUID back to its original sample ID.
// Every call, hit or miss, is audited; calls are rate-limited per the
// configured requests/sec to bound the blast radius of a compromised
// requester hammering this path.
func (a *Anonymizer) ReverseLookup(ctx context.Context, anonymousUUID string, actor domain.CurrentActor, reason string) (string, error) {
	if !a.limiter.Allow() {
		a.logReverseLookup(ctx, anonymousUUID, actor, reason, false, "rate_limited")
		return "", domain.NewLoaderError(domain.ErrCancelled, "reverse lookup rate limit exceeded", "", "")
	}

	mapping, found, err := a.store.LookupOriginal(ctx, anonymousUUID)
	if err != nil {
		a.logReverseLookup(ctx, anonymousUUID, actor, reason, false, "store_error")
		return "", fmt.Errorf("phi: reverse lookup: %w", err)
	}
	if !found {
		a.logReverseLookup(ctx, anonymousUUID, actor, reason, false, "no_mapping")
		return "", nil
	}

	original := mapping.OriginalID
	if a.encryptor != nil && len(mapping.OriginalIDEncrypted) > 0 {
		original, err = a.encryptor.Decrypt(mapping.OriginalIDEncrypted, mapping.EncryptionIV)
		if err != nil {
			a.logReverseLookup(ctx, anonymousUUID, actor, reason, false, "decrypt_error")
			return "", fmt.Errorf("phi: decrypting original id: %w", err)
		}
	}

	a.logReverseLookup(ctx, anonymousUUID, actor, reason, true, "")
	return original, nil
}

func (a *Anonymizer) logReverseLookup(ctx context.Context, anonymousUUID string, actor domain.CurrentActor, reason string, success bool, failureReason string) {
	if a.audit == nil {
		return
	}
	details := map[string]interface{}{
		"anonymous_uuid": anonymousUUID,
		"reason":         reason,
	}
	if failureReason != "" {
		details["failure_reason"] = failureReason
	}
	a.audit.LogEvent(ctx, domain.AuditEntry{
		EventTime:    time.Now().UTC(),
		EventType:    "phi_reverse_lookup",
		UserID:       actor.UserID,
		SessionID:    actor.SessionID,
		ClientIP:     actor.ClientIP,
		Action:       "reverse_lookup",
		Success:      success,
		ResourceType: "sample_mapping",
		ResourceID:   anonymousUUID,
		Details:      details,
	})
}

// NewDeterministicUUID derives a stable UUID from (originalID, sourceFile)
// without involving the store, used only to verify the determinism
// invariant in tests — production mappings always round-trip through the
// store so concurrent loaders agree on the same value.
func NewDeterministicUUID(originalID, sourceFile string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sourceFile+"\x00"+originalID)).String()
}
