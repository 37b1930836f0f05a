// Package clinannot extracts pre-computed ClinVar significance and gnomAD
// population allele frequency out of a variant's plain INFO keys (C2),
// covering the direct-annotation convention ClinVar and gnomAD/vcfanno both
// use instead of a VEP/SnpEff CSQ sub-field.
package clinannot

import "github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"

// gnomADKeys is the preference order for population allele frequency,
// covering gnomAD's combined key and the exome/genome-specific keys
// gnomAD and vcfanno both emit. AF_popmax is checked last: it reports the
// maximum across populations rather than the overall frequency.
var gnomADKeys = []string{"gnomAD_AF", "gnomADe_AF", "gnomADg_AF", "AF_popmax"}

// Annotation is the clinical annotation pulled from one variant's INFO map.
type Annotation struct {
	ClinVarSig string
	AFGnomAD   *float64
}

// Extract reads CLNSIG and the first present gnomAD frequency key out of a
// parsed INFO map. A CLNSIG or gnomAD_AF value declared Number=A/R and
// already resliced to this allele by normalize.Decompose arrives as a
// scalar; ClinVar's own VCFs declare CLNSIG Number=. and it is read as-is.
func Extract(info map[string]infoval.Value) Annotation {
	var a Annotation

	if v, ok := info["CLNSIG"].String(); ok {
		a.ClinVarSig = v
	}

	for _, key := range gnomADKeys {
		val, present := info[key]
		if !present || val.IsMissing() {
			continue
		}
		if f, ok := val.Float(); ok {
			a.AFGnomAD = &f
			break
		}
		if list, ok := val.List(); ok && len(list) > 0 {
			if f, ok := list[0].Float(); ok {
				a.AFGnomAD = &f
				break
			}
		}
	}

	return a
}
