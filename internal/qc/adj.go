package qc

import "github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"

// GenotypeQuality carries the fields the ADJ filter inspects.
type GenotypeQuality struct {
	GT string
	GQ *int
	DP *int
	AD []int
}

func alleleBalance(ad []int) (float64, bool) {
	if len(ad) < 2 {
		return 0, false
	}
	total := 0
	for _, d := range ad {
		total += d
	}
	if total == 0 {
		return 0, false
	}
	altSum := 0
	for _, d := range ad[1:] {
		altSum += d
	}
	return float64(altSum) / float64(total), true
}

func isHet(gt string) bool {
	alleles := splitGT(gt)
	if len(alleles) < 2 {
		return false
	}
	first := alleles[0]
	for _, a := range alleles[1:] {
		if a != first {
			return true
		}
	}
	return false
}

func isMultiallelicHet(gt string) bool {
	alleles := splitGT(gt)
	seen := map[string]bool{}
	for _, a := range alleles {
		if isMissingAllele(a) {
			return false
		}
		seen[a] = true
	}
	if len(seen) < 2 {
		return false
	}
	for a := range seen {
		if a != "0" && a != "1" {
			return true
		}
	}
	return false
}

// PassesAdj applies the GQ>=20, DP>=10, AB>=0.2-for-hets gate. A nil GQ/DP
// passes that sub-check (absent FORMAT field, not a failing value). The AB
// check is skipped for multi-allelic heterozygotes unless cfg opts in,
// per the documented default (DESIGN.md Open Question decision).
func PassesAdj(g GenotypeQuality, cfg domain.AdjFilterConfig) bool {
	if g.GQ != nil && *g.GQ < cfg.MinGQ {
		return false
	}
	if g.DP != nil && *g.DP < cfg.MinDP {
		return false
	}
	if isHet(g.GT) {
		if isMultiallelicHet(g.GT) && !cfg.ApplyToMultiallelicHets {
			return true
		}
		if ab, ok := alleleBalance(g.AD); ok && ab < cfg.MinAlleleBalance {
			return false
		}
	}
	return true
}
