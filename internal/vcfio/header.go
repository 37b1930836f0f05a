package vcfio

import (
	"regexp"
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/annotation"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/normalize"
)

// infoDecl is one ##INFO=<...> meta-info declaration.
type infoDecl struct {
	ID          string
	Number      string
	Type        string
	Description string
}

var infoLineRe = regexp.MustCompile(`^##INFO=<(.+)>$`)

func parseInfoDecl(line string) (infoDecl, bool) {
	m := infoLineRe.FindStringSubmatch(line)
	if m == nil {
		return infoDecl{}, false
	}
	fields := splitDeclFields(m[1])
	return infoDecl{
		ID:          fields["ID"],
		Number:      fields["Number"],
		Type:        fields["Type"],
		Description: fields["Description"],
	}, true
}

// splitDeclFields parses a comma-separated KEY=VALUE list where VALUE may
// itself be a quoted string containing commas (Description="...").
func splitDeclFields(s string) map[string]string {
	out := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inQuotes := false
	inValue := false

	flush := func() {
		if key.Len() > 0 {
			out[strings.TrimSpace(key.String())] = strings.Trim(strings.TrimSpace(val.String()), `"`)
		}
		key.Reset()
		val.Reset()
		inValue = false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			val.WriteByte(c)
		case c == '=' && !inValue && !inQuotes:
			inValue = true
		case c == ',' && !inQuotes:
			flush()
		default:
			if inValue {
				val.WriteByte(c)
			} else {
				key.WriteByte(c)
			}
		}
	}
	flush()
	return out
}

// Header holds the parsed meta-info and column layout of a VCF.
type Header struct {
	Raw              string
	InfoNumbers      map[string]normalize.InfoNumber
	CSQSchema        (*annotation.Schema)
	ANNSchema        (*annotation.Schema)
	ColumnIndex      map[string]int
	SampleNames      []string
	SampleColumnIdx  []int
	HasFormat        bool
}

func numberFromDecl(n string) normalize.InfoNumber {
	switch n {
	case "A":
		return normalize.NumberPerAllele
	case "R":
		return normalize.NumberPerAlleleWithRef
	case "G":
		return normalize.NumberGenotypeLikelihood
	default:
		return normalize.NumberScalar
	}
}

// ParseHeaderLines consumes the accumulated "##" meta lines and the final
// "#CHROM..." column header line, producing a Header ready to drive
// per-record parsing.
func ParseHeaderLines(metaLines []string, columnLine string) Header {
	h := Header{
		Raw:         strings.Join(metaLines, "\n"),
		InfoNumbers: make(map[string]normalize.InfoNumber),
	}

	for _, line := range metaLines {
		decl, ok := parseInfoDecl(line)
		if !ok {
			continue
		}
		h.InfoNumbers[decl.ID] = numberFromDecl(decl.Number)

		switch decl.ID {
		case "CSQ":
			if schema, ok := annotation.ParseSchemaDescription(annotation.SourceVEP, decl.Description); ok {
				h.CSQSchema = &schema
			} else {
				schema := annotation.DefaultVEPSchema()
				h.CSQSchema = &schema
			}
		case "ANN":
			if schema, ok := annotation.ParseSchemaDescription(annotation.SourceSnpEff, decl.Description); ok {
				h.ANNSchema = &schema
			} else {
				schema := annotation.DefaultSnpEffSchema()
				h.ANNSchema = &schema
			}
		}
	}

	cols := strings.Split(strings.TrimPrefix(strings.TrimSpace(columnLine), "#"), "\t")
	h.ColumnIndex = make(map[string]int, len(cols))
	for i, c := range cols {
		h.ColumnIndex[c] = i
	}

	if _, ok := h.ColumnIndex["FORMAT"]; ok {
		h.HasFormat = true
		formatIdx := h.ColumnIndex["FORMAT"]
		for i := formatIdx + 1; i < len(cols); i++ {
			h.SampleNames = append(h.SampleNames, cols[i])
			h.SampleColumnIdx = append(h.SampleColumnIdx, i)
		}
	}

	return h
}
