// Package qc computes per-variant and per-sample quality-control metrics:
// genotype bucket counts, AAF/MAF/MAC, the Hardy-Weinberg exact test,
// per-sample call rate/Ti-Tv/inbreeding coefficient, and the ADJ genotype
// filter (C5).
package qc

import (
	"math"
	"strings"
)

// GenotypeCounts buckets a site's genotype calls across its samples.
type GenotypeCounts struct {
	NCalled  int
	NHet     int
	NHomRef  int
	NHomAlt  int
}

// isMissingAllele reports whether a single allele token is the VCF missing
// marker '.'.
func isMissingAllele(a string) bool { return a == "." || a == "" }

// CountGenotypes buckets a slice of raw GT strings (e.g. "0/1", "1|1",
// "./.") into called/het/hom-ref/hom-alt counts. Any allele beyond 0/1 is
// treated as non-reference for bucketing purposes (a multi-allelic site's
// ALTs have already been decomposed upstream, so GT tokens here are
// 0/1-relative to the variant's own ALT).
func CountGenotypes(gts []string) GenotypeCounts {
	var c GenotypeCounts

	for _, gt := range gts {
		alleles := splitGT(gt)
		if len(alleles) == 0 {
			continue
		}

		missing := false
		for _, a := range alleles {
			if isMissingAllele(a) {
				missing = true
				break
			}
		}
		if missing {
			continue
		}

		c.NCalled++

		if len(alleles) == 1 {
			// Haploid call (chrX/Y male, mitochondrial).
			if alleles[0] == "0" {
				c.NHomRef++
			} else {
				c.NHomAlt++
			}
			continue
		}

		allRef := true
		allAlt := true
		firstAlt := ""
		mixed := false
		for _, a := range alleles {
			if a == "0" {
				allAlt = false
			} else {
				allRef = false
				if firstAlt == "" {
					firstAlt = a
				} else if a != firstAlt {
					mixed = true
				}
			}
		}
		switch {
		case allRef:
			c.NHomRef++
		case allAlt && !mixed:
			c.NHomAlt++
		default:
			c.NHet++
		}
	}

	return c
}

func splitGT(gt string) []string {
	gt = strings.TrimSpace(gt)
	if gt == "" {
		return nil
	}
	sep := "/"
	if strings.Contains(gt, "|") {
		sep = "|"
	}
	return strings.Split(gt, sep)
}

// AlleleFreq holds allele frequency summary statistics for a variant.
type AlleleFreq struct {
	AAF float64 // alternate allele frequency
	MAF float64 // minor allele frequency
	MAC int     // minor allele count
}

// ComputeAlleleFreq derives AAF/MAF/MAC from genotype bucket counts.
// Undefined (zero called samples) is represented as NaN for AAF/MAF.
func ComputeAlleleFreq(c GenotypeCounts) AlleleFreq {
	if c.NCalled == 0 {
		return AlleleFreq{AAF: math.NaN(), MAF: math.NaN(), MAC: 0}
	}

	altAlleles := 2*c.NHomAlt + c.NHet
	refAlleles := 2*c.NHomRef + c.NHet
	total := 2 * c.NCalled

	aaf := float64(altAlleles) / float64(total)
	maf := aaf
	if maf > 0.5 {
		maf = 1 - maf
	}
	mac := altAlleles
	if refAlleles < mac {
		mac = refAlleles
	}

	return AlleleFreq{AAF: aaf, MAF: maf, MAC: mac}
}
