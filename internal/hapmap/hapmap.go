// Package hapmap matches normalized variants against an in-memory HapMap3
// reference panel lookup, handling allele flips and strand complements
// (C6).
package hapmap

import "strings"

// Entry is one HapMap3 reference-panel row.
type Entry struct {
	RSID string
	A1   string
	A2   string
}

type key struct {
	chrom string
	pos   uint64
}

// Lookup is an immutable, process-wide (chrom,pos) -> entries index built
// once per load.
type Lookup struct {
	entries map[key][]Entry
}

// NewLookup builds a Lookup from a flat list of reference-panel rows.
func NewLookup(rows []struct {
	Chrom string
	Pos   uint64
	RSID  string
	A1    string
	A2    string
}) *Lookup {
	l := &Lookup{entries: make(map[key][]Entry, len(rows))}
	for _, r := range rows {
		k := key{chrom: NormalizeChrom(r.Chrom), pos: r.Pos}
		l.entries[k] = append(l.entries[k], Entry{RSID: r.RSID, A1: r.A1, A2: r.A2})
	}
	return l
}

// NormalizeChrom strips a leading "chr" prefix, case-insensitively.
func NormalizeChrom(chrom string) string {
	if len(chrom) > 3 && strings.EqualFold(chrom[:3], "chr") {
		return chrom[3:]
	}
	return chrom
}

var complements = map[byte]byte{'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C'}

// ComplementAllele returns the nucleotide complement of a single allele.
// Multi-base alleles are returned unchanged — strand complement only
// applies to SNPs.
func ComplementAllele(allele string) string {
	if len(allele) != 1 {
		return allele
	}
	up := strings.ToUpper(allele)
	if c, ok := complements[up[0]]; ok {
		return string(c)
	}
	return allele
}

// IsStrandAmbiguous reports whether an unordered allele pair is strand
// ambiguous ({A,T} or {C,G}), for which a complement can never be
// distinguished from the original strand.
func IsStrandAmbiguous(a1, a2 string) bool {
	up1, up2 := strings.ToUpper(a1), strings.ToUpper(a2)
	return unorderedEqual(up1, up2, "A", "T") || unorderedEqual(up1, up2, "C", "G")
}

func unorderedEqual(a1, a2, b1, b2 string) bool {
	return (a1 == b1 && a2 == b2) || (a1 == b2 && a2 == b1)
}

func unorderedAlleleEqual(ref, alt, a1, a2 string) bool {
	return (ref == a1 && alt == a2) || (ref == a2 && alt == a1)
}

// Match matches a query variant against the lookup. It tries an exact (or
// flipped) allele match first; if that fails and the pair is not strand-
// ambiguous, it retries with the nucleotide complements of ref and alt.
func (l *Lookup) Match(chrom string, pos uint64, ref, alt string) (Entry, bool) {
	k := key{chrom: NormalizeChrom(chrom), pos: pos}
	candidates, ok := l.entries[k]
	if !ok {
		return Entry{}, false
	}

	refUp, altUp := strings.ToUpper(ref), strings.ToUpper(alt)

	for _, e := range candidates {
		a1, a2 := strings.ToUpper(e.A1), strings.ToUpper(e.A2)
		if unorderedAlleleEqual(refUp, altUp, a1, a2) {
			return e, true
		}
	}

	if !IsStrandAmbiguous(refUp, altUp) {
		refComp, altComp := ComplementAllele(refUp), ComplementAllele(altUp)
		for _, e := range candidates {
			a1, a2 := strings.ToUpper(e.A1), strings.ToUpper(e.A2)
			if unorderedAlleleEqual(refComp, altComp, a1, a2) {
				return e, true
			}
		}
	}

	return Entry{}, false
}
