package qc

import "math"

// HWExactPValue computes the Hardy-Weinberg exact test p-value via the
// Wigginton, Cutler & Abecasis (2005) mid-point recurrence (the same
// algorithm PLINK's --hardy uses). Returns NaN when there are no
// observations at all.
func HWExactPValue(nHet, nHomRef, nHomAlt int) float64 {
	genotypes := nHet + nHomRef + nHomAlt
	if genotypes == 0 {
		return math.NaN()
	}

	homC, homR := nHomRef, nHomAlt // homC: major-homozygote count, homR: minor
	if nHomAlt > nHomRef {
		homC, homR = nHomAlt, nHomRef
	}
	rareCopies := 2*homR + nHet

	if rareCopies == 0 {
		return 1.0
	}

	hetProbs := make([]float64, rareCopies+1)

	mid := rareCopies * (2*genotypes - rareCopies) / (2 * genotypes)
	if mid%2 != rareCopies%2 {
		mid++
	}

	currHets := mid
	currHomR := (rareCopies - mid) / 2
	currHomC := genotypes - currHets - currHomR

	hetProbs[mid] = 1.0
	sum := hetProbs[mid]

	for h := mid; h > 1; h -= 2 {
		hetProbs[h-2] = hetProbs[h] * float64(h) * float64(h-1) /
			(4.0 * float64(currHomR+1) * float64(currHomC+1))
		sum += hetProbs[h-2]
		currHomR++
		currHomC++
	}

	currHets = mid
	currHomR = (rareCopies - mid) / 2
	currHomC = genotypes - currHets - currHomR

	for h := mid; h <= rareCopies-2; h += 2 {
		hetProbs[h+2] = hetProbs[h] * 4.0 * float64(currHomR) * float64(currHomC) /
			(float64(h+2) * float64(h+1))
		sum += hetProbs[h+2]
		currHomR--
		currHomC--
	}

	if sum == 0 {
		return math.NaN()
	}
	for i := range hetProbs {
		hetProbs[i] /= sum
	}

	threshold := hetProbs[nHet]
	pValue := 0.0
	for _, p := range hetProbs {
		if p <= threshold {
			pValue += p
		}
	}

	if pValue > 1.0 {
		pValue = 1.0
	}
	if pValue < 0.0 {
		pValue = 0.0
	}
	return pValue
}
