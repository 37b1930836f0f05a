package vcfio

import (
	"strconv"
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/qc"
)

// missingAllele is the recoded value substituted for a GT allele that
// refers to some OTHER ALT than the one a decomposed Variant represents.
// Collapsing it to "0" would misrepresent the sample as reference at a
// site it is actually non-reference for, so it is reported missing
// instead, matching how bcftools/vt recode unrelated ALT alleles when
// splitting a multi-allelic site into one record per ALT.
const missingAllele = "."

// DecomposeGenotype re-expresses a raw, possibly multi-allelic GT call
// against a single decomposed ALT allele. altIndex is 0-based (ALT allele
// number altIndex+1 in the original ALT list); alleles equal to it become
// "1", "0" stays "0", and any other non-missing ALT allele becomes
// missingAllele since it belongs to a sibling decomposed variant.
func DecomposeGenotype(gt string, altIndex int) string {
	if gt == "" || gt == "." || gt == "./." || gt == ".|." {
		return gt
	}

	sep := "/"
	if strings.Contains(gt, "|") {
		sep = "|"
	}
	alleles := strings.Split(gt, sep)
	target := altIndex + 1

	out := make([]string, len(alleles))
	for i, a := range alleles {
		if a == "." {
			out[i] = "."
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			out[i] = missingAllele
			continue
		}
		switch {
		case n == 0:
			out[i] = "0"
		case n == target:
			out[i] = "1"
		default:
			out[i] = missingAllele
		}
	}
	return strings.Join(out, sep)
}

// sampleFields splits one sample's colon-delimited FORMAT value, padding
// implicitly-dropped trailing fields (permitted by the VCF spec) with "."
// up to the declared FORMAT key count.
func sampleFields(format, sampleValue string) map[string]string {
	keys := strings.Split(format, ":")
	vals := strings.Split(sampleValue, ":")

	out := make(map[string]string, len(keys))
	for i, k := range keys {
		if i < len(vals) {
			out[k] = vals[i]
		} else {
			out[k] = "."
		}
	}
	return out
}

func parseIntField(s string) *int {
	if s == "" || s == "." {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func parseIntList(s string) []int {
	if s == "" || s == "." {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func parseFloatList(s string) []float64 {
	if s == "" || s == "." {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// rescaleAD reslices a FORMAT AD list (REF depth followed by one depth per
// original ALT allele) down to the [ref, this-alt] pair a decomposed,
// bi-allelic Variant needs. altIndex is 0-based.
func rescaleAD(ad []int, altIndex int) []int {
	if ad == nil || len(ad) < altIndex+2 {
		return nil
	}
	return []int{ad[0], ad[altIndex+1]}
}

// dosageFromGP computes expected ALT dosage from biallelic genotype
// probabilities [P(RR), P(RA), P(AA)]: dosage = P(RA) + 2*P(AA). Only
// defined for bi-allelic GP triples; multi-allelic GP (Number=G, one
// probability per unordered genotype) is left unconverted.
func dosageFromGP(gp []float64) *float64 {
	if len(gp) != 3 {
		return nil
	}
	d := gp[1] + 2*gp[2]
	return &d
}

// BuildGenotype parses one sample's raw FORMAT column value, recodes its
// GT against the given decomposed ALT (altIndex, 0-based, out of numAlts
// total original ALT alleles), and assembles the resulting domain.Genotype.
// adjCfg gates the PassesAdj field via the qc package's ADJ filter.
func BuildGenotype(sampleID, format, sampleValue string, altIndex, numAlts int, adjCfg domain.AdjFilterConfig) domain.Genotype {
	fields := sampleFields(format, sampleValue)

	rawGT := fields["GT"]
	gt := rawGT
	if numAlts > 1 {
		gt = DecomposeGenotype(rawGT, altIndex)
	}

	gq := parseIntField(fields["GQ"])
	dp := parseIntField(fields["DP"])

	var ad []int
	if raw := parseIntList(fields["AD"]); raw != nil {
		if numAlts > 1 {
			ad = rescaleAD(raw, altIndex)
		} else {
			ad = raw
		}
	}

	var dosage *float64
	if ds := parseFloatList(fields["DS"]); len(ds) > 0 {
		idx := 0
		if numAlts > 1 && altIndex < len(ds) {
			idx = altIndex
		}
		d := ds[idx]
		dosage = &d
	}

	gp := parseFloatList(fields["GP"])
	if dosage == nil {
		dosage = dosageFromGP(gp)
	}
	if numAlts > 1 {
		// Number=G genotype-probability triangles don't decompose onto a
		// single bi-allelic pair without knowing every ALT's ploidy
		// combination, so they are dropped rather than misreported.
		gp = nil
	}

	g := domain.Genotype{
		SampleID: sampleID,
		GT:       gt,
		GQ:       gq,
		DP:       dp,
		AD:       ad,
		Dosage:   dosage,
		GP:       gp,
	}
	g.PassesAdj = qc.PassesAdj(qc.GenotypeQuality{GT: g.GT, GQ: g.GQ, DP: g.DP, AD: g.AD}, adjCfg)
	return g
}

// BuildGenotypes expands one Batch data line's raw per-sample FORMAT
// values into one []domain.Genotype per decomposed Variant, using
// LineVariantCount to find which slice of variants the line produced.
func BuildGenotypes(batch Batch, sampleIDs []string, adjCfg domain.AdjFilterConfig) [][]domain.Genotype {
	out := make([][]domain.Genotype, len(batch.Variants))

	variantIdx := 0
	for line, n := range batch.LineVariantCount {
		format := batch.FormatColumn[line]
		rawGTs := batch.Genotypes[line]

		for altIndex := 0; altIndex < n; altIndex++ {
			genotypes := make([]domain.Genotype, 0, len(rawGTs))
			for sampleIdx, sampleValue := range rawGTs {
				sampleID := ""
				if sampleIdx < len(sampleIDs) {
					sampleID = sampleIDs[sampleIdx]
				}
				genotypes = append(genotypes, BuildGenotype(sampleID, format, sampleValue, altIndex, n, adjCfg))
			}
			out[variantIdx] = genotypes
			variantIdx++
		}
	}

	return out
}
