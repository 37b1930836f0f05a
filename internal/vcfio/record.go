package vcfio

import (
	"strconv"
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/annotation"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/clinannot"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/imputation"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/normalize"
)

const minDataColumns = 8

// rawInfoFields splits a semicolon-delimited INFO field into its raw,
// un-reinterpreted KEY->VALUE strings. CSQ/ANN values are themselves
// comma-separated per-transcript groups that the annotation package
// splits itself, so they must not be auto-listed by ParseInfo first.
func rawInfoFields(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" || raw == "." {
		return out
	}
	for _, field := range strings.Split(raw, ";") {
		if field == "" {
			continue
		}
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			continue
		}
		out[field[:eq]] = field[eq+1:]
	}
	return out
}

// ParseInfo tokenizes a semicolon-delimited INFO field into a map of
// infoval.Value. Any value containing a comma becomes a list and any
// other value a scalar; numbers is not consulted, so a key's declared
// Number= does not affect the result.
func ParseInfo(raw string, numbers map[string]normalize.InfoNumber) map[string]infoval.Value {
	out := make(map[string]infoval.Value)
	if raw == "" || raw == "." {
		return out
	}

	for _, field := range strings.Split(raw, ";") {
		if field == "" {
			continue
		}
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			out[field] = infoval.Flag()
			continue
		}
		key, val := field[:eq], field[eq+1:]

		if strings.Contains(val, ",") {
			parts := strings.Split(val, ",")
			vals := make([]infoval.Value, len(parts))
			for i, p := range parts {
				vals[i] = infoval.ParseScalar(p)
			}
			out[key] = infoval.List(vals)
			continue
		}
		out[key] = infoval.ParseScalar(val)
	}

	return out
}

// RawLine is one unparsed VCF data line plus its 1-based file line number.
type RawLine struct {
	Line   int
	Text   string
}

// Validate checks the minimal structural requirements of a VCF data line
// (§4.4): at least 8 columns, numeric POS, non-empty REF.
func Validate(lineNo int, cols []string) error {
	if len(cols) < minDataColumns {
		return &domain.ParseError{Line: lineNo, Message: "expected at least 8 columns", Excerpt: excerpt(cols)}
	}
	if _, err := strconv.ParseUint(cols[1], 10, 64); err != nil {
		return &domain.ParseError{Line: lineNo, Message: "non-numeric POS", Excerpt: cols[1]}
	}
	if cols[3] == "" {
		return &domain.ParseError{Line: lineNo, Message: "empty REF", Excerpt: excerpt(cols)}
	}
	return nil
}

func excerpt(cols []string) string {
	s := strings.Join(cols, "\t")
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// ParseRecords decomposes, normalizes, annotates, and imputation-tags one
// VCF data line into one Variant per ALT allele.
func ParseRecords(h Header, impSource imputation.Source, cols []string) []domain.Variant {
	chrom := cols[0]
	pos, _ := strconv.ParseUint(cols[1], 10, 64)
	id := cols[2]
	ref := cols[3]
	altField := cols[4]
	filter := ""
	if len(cols) > 6 {
		filter = cols[6]
	}
	infoRaw := ""
	if len(cols) > 7 {
		infoRaw = cols[7]
	}

	info := ParseInfo(infoRaw, h.InfoNumbers)
	rawFields := rawInfoFields(infoRaw)
	decomposed := normalize.Decompose(pos, ref, altField, info, h.InfoNumbers)

	variants := make([]domain.Variant, 0, len(decomposed))
	for _, d := range decomposed {
		v := domain.Variant{
			Chrom:  chrom,
			Pos:    d.Normalized.Pos,
			Ref:    d.Normalized.Ref,
			Alt:    d.Normalized.Alt,
			RSID:   id,
			Filter: filter,
			Info:   d.Info,
		}
		if d.Normalized.Changed {
			v.Normalized = true
			v.OriginalPos = d.Normalized.OriginalPos
			v.OriginalRef = d.Normalized.OriginalRef
			v.OriginalAlt = d.Normalized.OriginalAlt
		}

		annotateVariant(&v, h, rawFields)

		clin := clinannot.Extract(d.Info)
		if clin.ClinVarSig != "" {
			v.ClinVarSig = clin.ClinVarSig
		}
		v.AFGnomAD = clin.AFGnomAD

		m := imputation.ExtractMetrics(d.Info, impSource)
		v.InfoScore = m.InfoScore
		v.ImputationR2 = m.ImputationR2
		v.IsImputed = m.IsImputed
		v.IsTyped = m.IsTyped

		variants = append(variants, v)
	}

	return variants
}

func annotateVariant(v *domain.Variant, h Header, rawFields map[string]string) {
	var schema *annotation.Schema
	var raw string

	if h.CSQSchema != nil {
		if s, ok := rawFields["CSQ"]; ok {
			schema, raw = h.CSQSchema, s
		}
	}
	if schema == nil && h.ANNSchema != nil {
		if s, ok := rawFields["ANN"]; ok {
			schema, raw = h.ANNSchema, s
		}
	}
	if schema == nil {
		return
	}

	ann, ok := annotation.Resolve(*schema, raw, v.Alt)
	if !ok {
		return
	}
	v.Gene = ann.Gene
	v.Consequence = ann.Consequence
	v.Impact = ann.Impact
	v.HGVSc = ann.HGVSc
	v.HGVSp = ann.HGVSp
	v.Transcript = ann.Transcript
}
