// Package imputation detects the imputation software that produced a VCF
// (Minimac4, Beagle, or IMPUTE2) from its header and extracts per-variant
// imputation quality metrics (C3).
package imputation

import (
	"regexp"
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"
)

// Source identifies the imputation software that produced a VCF.
type Source string

const (
	SourceMinimac4 Source = "minimac4"
	SourceBeagle   Source = "beagle"
	SourceImpute2  Source = "impute2"
	SourceAuto     Source = "auto"
	SourceUnknown  Source = "unknown"
)

var (
	reR2         = regexp.MustCompile(`(?i)##INFO=<ID=R2,`)
	reDR2        = regexp.MustCompile(`(?i)##INFO=<ID=DR2,`)
	reInfoFloat  = regexp.MustCompile(`(?i)##INFO=<ID=INFO,.*Type=Float`)
	reImputedTag = regexp.MustCompile(`(?i)##INFO=<ID=IMPUTED,`)
	reTypedTag   = regexp.MustCompile(`(?i)##INFO=<ID=TYPED,`)
	reImpTag     = regexp.MustCompile(`(?i)##INFO=<ID=IMP,`)
	reSource     = regexp.MustCompile(`(?i)##source=(.+)`)
)

// DetectSource sniffs a raw VCF header block for known imputation-engine
// signatures, preferring an explicit textual mention over a bare field
// declaration.
func DetectSource(header string) Source {
	lower := strings.ToLower(header)

	switch {
	case strings.Contains(lower, "minimac"), strings.Contains(lower, "michigan imputation server"):
		return SourceMinimac4
	case strings.Contains(lower, "beagle"):
		return SourceBeagle
	case strings.Contains(lower, "impute2"):
		return SourceImpute2
	}

	switch {
	case reR2.MatchString(header):
		return SourceMinimac4
	case reDR2.MatchString(header):
		return SourceBeagle
	case reInfoFloat.MatchString(header):
		return SourceImpute2
	}

	return SourceUnknown
}

// HeaderInfo summarizes the imputation-related INFO declarations found in
// a VCF header.
type HeaderInfo struct {
	HasR2          bool
	HasDR2         bool
	HasInfoScore   bool
	HasImputedFlag bool
	HasTypedFlag   bool
	HasImpFlag     bool
	DetectedSource Source
	SourceString   string
}

// ParseHeader extracts imputation field presence and the detected source
// from a raw VCF header block.
func ParseHeader(header string) HeaderInfo {
	info := HeaderInfo{
		HasR2:          reR2.MatchString(header),
		HasDR2:         reDR2.MatchString(header),
		HasInfoScore:   reInfoFloat.MatchString(header),
		HasImputedFlag: reImputedTag.MatchString(header),
		HasTypedFlag:   reTypedTag.MatchString(header),
		HasImpFlag:     reImpTag.MatchString(header),
	}
	if m := reSource.FindStringSubmatch(header); m != nil {
		info.SourceString = strings.TrimSpace(m[1])
	}
	info.DetectedSource = DetectSource(header)
	return info
}

// Metrics is the imputation quality summary for a single variant.
type Metrics struct {
	InfoScore    *float64
	ImputationR2 *float64
	IsImputed    bool
	IsTyped      bool
	Source       Source
}

func asFloat(v infoval.Value) *float64 {
	if f, ok := v.Float(); ok {
		return &f
	}
	if i, ok := v.Int(); ok {
		f := float64(i)
		return &f
	}
	if list, ok := v.List(); ok && len(list) > 0 {
		return asFloat(list[0])
	}
	return nil
}

func isTruthy(v infoval.Value) bool {
	switch v.Kind() {
	case infoval.KindFlag:
		return true
	case infoval.KindInt:
		i, _ := v.Int()
		return i != 0
	case infoval.KindFloat:
		f, _ := v.Float()
		return f != 0
	case infoval.KindString:
		s, _ := v.String()
		s = strings.ToLower(s)
		return s == "true" || s == "1" || s == "yes"
	default:
		return false
	}
}

// ExtractMetrics reads the source-specific score/flag fields from a
// variant's parsed INFO map. If source is SourceAuto, the first of
// R2/DR2/INFO present in info selects the concrete source.
func ExtractMetrics(info map[string]infoval.Value, source Source) Metrics {
	var m Metrics

	if source == SourceUnknown {
		return m
	}

	if source == SourceAuto {
		switch {
		case !info["R2"].IsMissing():
			source = SourceMinimac4
		case !info["DR2"].IsMissing():
			source = SourceBeagle
		case !info["INFO"].IsMissing():
			source = SourceImpute2
		default:
			return m
		}
	}

	switch source {
	case SourceMinimac4:
		r2 := asFloat(info["R2"])
		m.InfoScore = r2
		m.ImputationR2 = r2
		m.IsImputed = isTruthy(info["IMPUTED"])
		m.IsTyped = isTruthy(info["TYPED"])
		m.Source = SourceMinimac4

	case SourceBeagle:
		dr2 := asFloat(info["DR2"])
		m.InfoScore = dr2
		m.ImputationR2 = dr2
		m.IsImputed = isTruthy(info["IMP"])
		if dr2 != nil && *dr2 >= 1.0 && !m.IsImputed {
			m.IsTyped = true
		}
		m.Source = SourceBeagle

	case SourceImpute2:
		score := asFloat(info["INFO"])
		m.InfoScore = score
		m.ImputationR2 = score
		if score != nil {
			m.IsImputed = true
		}
		m.Source = SourceImpute2
	}

	return m
}

// BelowMinimum reports whether a variant's info score falls below a
// configured minimum. A nil score or nil minimum never filters.
func BelowMinimum(infoScore *float64, minScore *float64) bool {
	if minScore == nil || infoScore == nil {
		return false
	}
	return *infoScore < *minScore
}
