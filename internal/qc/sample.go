package qc

import "math"

// SampleGenotypeCall is one variant's call for a single sample, enough
// context to drive per-sample QC accumulation.
type SampleGenotypeCall struct {
	GT    string
	Chrom string
	Ref   string
	Alt   string
}

// SampleAccumulator collects per-sample QC state across all variants in a
// load, to be finalized once into SampleMetrics.
type SampleAccumulator struct {
	nTotal      int
	nCalled     int
	nHet        int
	nHomAlt     int
	transitions int
	transversions int
	xCalled     int
	xHet        int
	observedHet  int
	expectedHet  float64
}

var transitionPairs = map[[2]byte]bool{
	{'A', 'G'}: true, {'G', 'A'}: true,
	{'C', 'T'}: true, {'T', 'C'}: true,
}

func isSNP(ref, alt string) bool {
	return len(ref) == 1 && len(alt) == 1 && ref != alt
}

// Add folds one variant's genotype call into the accumulator. expectedHetP
// is the site's expected heterozygosity under HWE (2*AAF*(1-AAF)), used
// for the inbreeding coefficient.
func (a *SampleAccumulator) Add(call SampleGenotypeCall, expectedHetP float64) {
	a.nTotal++
	alleles := splitGT(call.GT)
	if len(alleles) == 0 {
		return
	}
	for _, al := range alleles {
		if isMissingAllele(al) {
			return
		}
	}
	a.nCalled++

	het := false
	homAlt := false
	if len(alleles) >= 2 {
		allRef, allAlt, mixed, firstAlt := true, true, false, ""
		for _, al := range alleles {
			if al == "0" {
				allAlt = false
			} else {
				allRef = false
				if firstAlt == "" {
					firstAlt = al
				} else if al != firstAlt {
					mixed = true
				}
			}
		}
		het = !allRef && (!allAlt || mixed)
		homAlt = allAlt && !mixed
	} else {
		homAlt = alleles[0] != "0"
	}

	if het {
		a.nHet++
	}
	if homAlt {
		a.nHomAlt++
	}

	if isSNP(call.Ref, call.Alt) {
		pair := [2]byte{toUpperByte(call.Ref[0]), toUpperByte(call.Alt[0])}
		if transitionPairs[pair] {
			a.transitions++
		} else {
			a.transversions++
		}
	}

	if isChromX(call.Chrom) {
		a.xCalled++
		if het {
			a.xHet++
		}
	}

	if het {
		a.observedHet++
	}
	a.expectedHet += expectedHetP
}

func toUpperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func isChromX(chrom string) bool {
	c := chrom
	if len(c) > 3 && (c[:3] == "chr" || c[:3] == "Chr" || c[:3] == "CHR") {
		c = c[3:]
	}
	return c == "X"
}

// SampleSex is the inferred biological sex from X-chromosome heterozygosity.
type SampleSex string

const (
	SexMale    SampleSex = "M"
	SexFemale  SampleSex = "F"
	SexUnknown SampleSex = "unknown"
)

// SampleMetrics is the finalized set of per-sample QC statistics.
type SampleMetrics struct {
	CallRate     float64
	HetHomRatio  float64 // NaN if nHomAlt == 0
	TiTvRatio    float64 // NaN if no transversions observed
	SexFromXHet  SampleSex
	FInbreeding  float64 // NaN if expected heterozygosity is 0
	QCPass       bool
}

// Finalize computes the sample's summary metrics. contam and sexConcordant
// are optional external inputs (nil means "not evaluated", which does not
// fail QCPass).
func (a *SampleAccumulator) Finalize(contam *float64, sexConcordant *bool) SampleMetrics {
	var m SampleMetrics

	if a.nTotal > 0 {
		m.CallRate = float64(a.nCalled) / float64(a.nTotal)
	} else {
		m.CallRate = math.NaN()
	}

	if a.nHomAlt == 0 {
		m.HetHomRatio = math.NaN()
	} else {
		m.HetHomRatio = float64(a.nHet) / float64(a.nHomAlt)
	}

	if a.transversions == 0 {
		m.TiTvRatio = math.NaN()
	} else {
		m.TiTvRatio = float64(a.transitions) / float64(a.transversions)
	}

	xHetRate := math.NaN()
	if a.xCalled > 0 {
		xHetRate = float64(a.xHet) / float64(a.xCalled)
	}
	switch {
	case math.IsNaN(xHetRate):
		m.SexFromXHet = SexUnknown
	case xHetRate < 0.06:
		m.SexFromXHet = SexMale
	case xHetRate > 0.14:
		m.SexFromXHet = SexFemale
	default:
		m.SexFromXHet = SexUnknown
	}

	if a.expectedHet == 0 {
		m.FInbreeding = math.NaN()
	} else {
		m.FInbreeding = 1 - float64(a.observedHet)/a.expectedHet
	}

	m.QCPass = m.CallRate >= 0.99 &&
		(contam == nil || *contam < 0.025) &&
		(sexConcordant == nil || *sexConcordant)

	return m
}
