package domain

import (
	"time"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"
)

// Impact ranks the severity VEP/SnpEff assign to a consequence.
type Impact int

const (
	ImpactModifier Impact = iota
	ImpactLow
	ImpactModerate
	ImpactHigh
)

// ParseImpact maps a VEP/SnpEff impact string to its rank.
func ParseImpact(s string) (Impact, bool) {
	switch s {
	case "HIGH":
		return ImpactHigh, true
	case "MODERATE":
		return ImpactModerate, true
	case "LOW":
		return ImpactLow, true
	case "MODIFIER":
		return ImpactModifier, true
	default:
		return ImpactModifier, false
	}
}

func (i Impact) String() string {
	switch i {
	case ImpactHigh:
		return "HIGH"
	case ImpactModerate:
		return "MODERATE"
	case ImpactLow:
		return "LOW"
	default:
		return "MODIFIER"
	}
}

// Variant is a single decomposed, normalized (chrom,pos,ref,alt) record
// enriched with annotation, imputation, and HapMap3 metadata.
type Variant struct {
	Chrom string
	Pos   uint64
	Ref   string
	Alt   string
	RSID  string
	Filter string
	Info  map[string]infoval.Value

	// Normalization provenance, populated only when the triple changed.
	Normalized   bool
	OriginalPos  uint64
	OriginalRef  string
	OriginalAlt  string

	// Annotation (C2)
	Gene        string
	Consequence string
	Impact      string
	HGVSc       string
	HGVSp       string
	Transcript  string
	ClinVarSig  string
	AFGnomAD    *float64

	// Imputation (C3)
	InfoScore     *float64
	ImputationR2  *float64
	IsImputed     bool
	IsTyped       bool

	// HapMap3 (C6)
	InHapMap3    bool
	HapMap3RSID  string

	// QC (C5), computed fresh from the incoming file's genotype calls at
	// this site. AAF/MAF are NaN when NCalled is 0, matching
	// qc.ComputeAlleleFreq's undefined-as-NaN convention.
	NCalled    int
	NHet       int
	NHomRef    int
	NHomAlt    int
	AAF        float64
	MAF        float64
	MAC        int
	HWEPValue  float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Genotype is a single sample's call at a Variant.
type Genotype struct {
	VariantID  int64
	SampleID   string
	GT         string
	GQ         *int
	DP         *int
	AD         []int
	Dosage     *float64
	GP         []float64

	PassesAdj bool
}

// LoadStatus is a LoadBatch life-cycle state (C10).
type LoadStatus string

const (
	LoadStatusStarted    LoadStatus = "started"
	LoadStatusCompleted  LoadStatus = "completed"
	LoadStatusFailed     LoadStatus = "failed"
	LoadStatusRolledBack LoadStatus = "rolled_back"
)

// ValidTransition reports whether moving from the receiver to next is
// legal under the load-batch state machine (§4.10).
func (s LoadStatus) ValidTransition(next LoadStatus) bool {
	if s != LoadStatusStarted {
		return false
	}
	switch next {
	case LoadStatusCompleted, LoadStatusFailed, LoadStatusRolledBack:
		return true
	default:
		return false
	}
}

// LoadBatch journals a single ingestion run.
type LoadBatch struct {
	LoadBatchID     string
	VCFPath         string
	FileMD5         string
	FileSize        int64
	ReferenceGenome string
	VariantsLoaded  int64
	Status          LoadStatus
	ErrorMessage    string
	IsReload        bool
	PreviousLoadID  string
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// AuditEntry is a single append-only, hash-chained audit record (C8).
type AuditEntry struct {
	AuditID      string
	EventTime    time.Time
	EventType    string
	UserID       string
	UserName     string
	SessionID    string
	Action       string
	Success      bool
	ResourceType string
	ResourceID   string
	ClientIP     string
	Details      map[string]interface{}
	PreviousHash string
	EntryHash    string
}

// CurrentActor identifies who triggered an operation that must be audited.
// It is threaded explicitly into every call that needs attribution rather
// than read from an ambient global.
type CurrentActor struct {
	UserID    string
	SessionID string
	ClientIP  string
}

// HapMap3Entry is one reference-panel row for a (chrom,pos) site.
type HapMap3Entry struct {
	PanelName string
	RSID      string
	Chrom     string
	Position  uint64
	A1        string
	A2        string
}

// SampleMapping is a deterministic original-to-anonymous sample ID link (C7).
type SampleMapping struct {
	OriginalID          string
	SourceFile          string
	AnonymousUUID       string
	LoadBatchID         string
	OriginalIDEncrypted []byte
	EncryptionIV        []byte
	CreatedAt           time.Time
}

// AdjFilterConfig controls the ADJ genotype-quality gate (§4.5).
type AdjFilterConfig struct {
	MinGQ                   int
	MinDP                   int
	MinAlleleBalance        float64
	ApplyToMultiallelicHets bool
}

// DefaultAdjFilterConfig matches the Open Question decision in DESIGN.md:
// the AB rule does not apply to multi-allelic hets by default.
func DefaultAdjFilterConfig() AdjFilterConfig {
	return AdjFilterConfig{
		MinGQ:                   20,
		MinDP:                   10,
		MinAlleleBalance:        0.2,
		ApplyToMultiallelicHets: false,
	}
}

// LoadBatchConfig parameterizes a single C9 load.
type LoadBatchConfig struct {
	BatchSize             int
	HapMap3Enabled         bool
	HapMap3Path            string
	MinImputationScore     float64
	RequireEncryption      bool
	AdjFilter              AdjFilterConfig
	ReferenceGenome        string
}

// DefaultLoadBatchConfig returns the spec's documented defaults.
func DefaultLoadBatchConfig() LoadBatchConfig {
	return LoadBatchConfig{
		BatchSize:          10000,
		HapMap3Enabled:     true,
		MinImputationScore: 0,
		RequireEncryption:  false,
		AdjFilter:          DefaultAdjFilterConfig(),
		ReferenceGenome:    "GRCh38",
	}
}
