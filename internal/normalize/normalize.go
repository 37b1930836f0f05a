// Package normalize implements variant left-alignment and multi-allelic
// decomposition without a reference FASTA (C1).
package normalize

import (
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"
)

// Normalized holds a trimmed (pos, ref, alt) triple and whether trimming
// changed anything relative to the input.
type Normalized struct {
	Pos uint64
	Ref string
	Alt string

	Changed     bool
	OriginalPos uint64
	OriginalRef string
	OriginalAlt string
}

// Normalize trims a shared trailing base then a shared leading base,
// repeatedly, from (ref, alt), adjusting pos as bases are trimmed from the
// front. It never consults a reference sequence: this is pure in-memory
// left-alignment, not full VCF-spec normalization across repeat runs.
func Normalize(pos uint64, ref, alt string) Normalized {
	origPos, origRef, origAlt := pos, ref, alt

	for len(ref) > 1 && len(alt) > 1 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref = ref[:len(ref)-1]
		alt = alt[:len(alt)-1]
	}
	for len(ref) > 1 && len(alt) > 1 && ref[0] == alt[0] {
		ref = ref[1:]
		alt = alt[1:]
		pos++
	}

	return Normalized{
		Pos:         pos,
		Ref:         ref,
		Alt:         alt,
		Changed:     pos != origPos || ref != origRef || alt != origAlt,
		OriginalPos: origPos,
		OriginalRef: origRef,
		OriginalAlt: origAlt,
	}
}

// Idempotent reports whether normalizing the result again is a no-op, the
// invariant required by SPEC_FULL.md §8.
func Idempotent(n Normalized) bool {
	again := Normalize(n.Pos, n.Ref, n.Alt)
	return again.Pos == n.Pos && again.Ref == n.Ref && again.Alt == n.Alt
}

// DecomposedAllele is one ALT's share of a multi-allelic row, after
// normalization and per-allele INFO reslicing.
type DecomposedAllele struct {
	Index      int
	Normalized Normalized
	Info       map[string]infoval.Value
}

// InfoNumber declares how an INFO field's Number= is interpreted when
// reslicing for one ALT out of N.
type InfoNumber int

const (
	// NumberScalar fields (Number=1, or a bare flag) are copied as-is.
	NumberScalar InfoNumber = iota
	// NumberPerAllele fields (Number=A) carry one value per ALT allele.
	NumberPerAllele
	// NumberPerAlleleWithRef fields (Number=R) carry REF plus one value per ALT.
	NumberPerAlleleWithRef
	// NumberGenotypeLikelihood fields (Number=G) are kept only for the
	// first ALT; decomposing GL arrays across alleles is out of scope.
	NumberGenotypeLikelihood
)

// Decompose splits a multi-allelic row into one record per ALT, reslicing
// each declared INFO field according to its Number= semantics. An ALT that
// normalizes to the same allele as REF violates the ref != alt invariant
// (§4.1(a)) and is dropped rather than emitted.
func Decompose(pos uint64, ref, altField string, info map[string]infoval.Value, numbers map[string]InfoNumber) []DecomposedAllele {
	alts := strings.Split(altField, ",")
	out := make([]DecomposedAllele, 0, len(alts))

	for idx, alt := range alts {
		n := Normalize(pos, ref, alt)
		if n.Ref == n.Alt {
			continue
		}
		sliced := make(map[string]infoval.Value, len(info))

		for key, val := range info {
			switch numbers[key] {
			case NumberPerAllele:
				if list, ok := val.List(); ok && idx < len(list) {
					sliced[key] = list[idx]
				} else {
					sliced[key] = val
				}
			case NumberPerAlleleWithRef:
				if list, ok := val.List(); ok {
					refIdx, altIdx := 0, idx+1
					out2 := make([]infoval.Value, 0, 2)
					if refIdx < len(list) {
						out2 = append(out2, list[refIdx])
					}
					if altIdx < len(list) {
						out2 = append(out2, list[altIdx])
					}
					sliced[key] = infoval.List(out2)
				} else {
					sliced[key] = val
				}
			case NumberGenotypeLikelihood:
				if idx == 0 {
					sliced[key] = val
				}
			default:
				sliced[key] = val
			}
		}

		out = append(out, DecomposedAllele{Index: idx, Normalized: n, Info: sliced})
	}

	return out
}
