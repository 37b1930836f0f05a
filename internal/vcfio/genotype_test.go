package vcfio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

var defaultAdj = domain.DefaultAdjFilterConfig()

func TestDecomposeGenotypeRecodesEachAltSeparately(t *testing.T) {
	// Raw call "0/2" against a 3-ALT site (ALT indices 0,1,2 -> allele
	// numbers 1,2,3): only the record for allele number 2 sees a "1"; the
	// other records report that allele as missing.
	assert.Equal(t, "0/.", DecomposeGenotype("0/2", 0))
	assert.Equal(t, "0/1", DecomposeGenotype("0/2", 1))
	assert.Equal(t, "0/.", DecomposeGenotype("0/2", 2))
}

func TestDecomposeGenotypePreservesPhasing(t *testing.T) {
	assert.Equal(t, "1|0", DecomposeGenotype("2|0", 1))
}

func TestDecomposeGenotypePassesThroughMissing(t *testing.T) {
	assert.Equal(t, "./.", DecomposeGenotype("./.", 0))
	assert.Equal(t, ".", DecomposeGenotype(".", 0))
}

func TestDecomposeGenotypeHomAltOtherAllele(t *testing.T) {
	// Homozygous for an ALT this decomposed record doesn't represent:
	// both positions go missing rather than reporting a false hom-ref.
	assert.Equal(t, "./.", DecomposeGenotype("2/2", 0))
}

func TestBuildGenotypeBiallelicPassesThroughFields(t *testing.T) {
	g := BuildGenotype("NA12878", "GT:GQ:DP:AD", "0/1:35:20:12,8", 0, 1, defaultAdj)
	assert.Equal(t, "0/1", g.GT)
	require.NotNil(t, g.GQ)
	assert.Equal(t, 35, *g.GQ)
	require.NotNil(t, g.DP)
	assert.Equal(t, 20, *g.DP)
	assert.Equal(t, []int{12, 8}, g.AD)
	assert.True(t, g.PassesAdj)
}

func TestBuildGenotypeMultiallelicRescalesAD(t *testing.T) {
	// AD = [ref, alt1, alt2]; decomposing against ALT index 1 keeps only
	// the ref and alt1 depths.
	g := BuildGenotype("NA12878", "GT:AD", "1/2:10,5,7", 1, 2, defaultAdj)
	assert.Equal(t, "1/0", g.GT)
	assert.Equal(t, []int{10, 7}, g.AD)
}

func TestBuildGenotypeFailsAdjOnLowGQ(t *testing.T) {
	g := BuildGenotype("s1", "GT:GQ", "0/1:10", 0, 1, defaultAdj)
	assert.False(t, g.PassesAdj)
}

func TestBuildGenotypeFailsAdjOnLowAlleleBalanceForHet(t *testing.T) {
	g := BuildGenotype("s1", "GT:AD", "0/1:19,1", 0, 1, defaultAdj)
	assert.False(t, g.PassesAdj)
}

func TestBuildGenotypeDosageFromGP(t *testing.T) {
	g := BuildGenotype("s1", "GT:GP", "0/1:0.1,0.8,0.1", 0, 1, defaultAdj)
	require.NotNil(t, g.Dosage)
	assert.InDelta(t, 1.0, *g.Dosage, 1e-9)
}

func TestBuildGenotypeDropsGPWhenMultiallelic(t *testing.T) {
	g := BuildGenotype("s1", "GT:GP", "0/1:0.1,0.7,0.1,0.05,0.03,0.01", 0, 2, defaultAdj)
	assert.Nil(t, g.GP)
}

func TestBuildGenotypesAlignsLineToDecomposedVariants(t *testing.T) {
	batch := Batch{
		Variants:         []domain.Variant{{Chrom: "1", Alt: "A"}, {Chrom: "1", Alt: "G"}},
		Genotypes:        [][]string{{"0/2:30", "1/1:40"}},
		LineVariantCount: []int{2},
		FormatColumn:     []string{"GT:GQ"},
	}

	genotypes := BuildGenotypes(batch, []string{"sample1", "sample2"}, defaultAdj)
	require.Len(t, genotypes, 2)

	// ALT index 0 ("A", allele number 1): sample1's "0/2" has no allele-1
	// copy and its allele 2 belongs to the sibling record -> "0/.".
	// sample2's "1/1" matches fully -> "1/1".
	assert.Equal(t, "0/.", genotypes[0][0].GT)
	assert.Equal(t, "1/1", genotypes[0][1].GT)

	// ALT index 1 ("G", allele number 2): sample1's "0/2" becomes "0/1".
	// sample2's "1/1" is homozygous for the other ALT -> fully missing.
	assert.Equal(t, "0/1", genotypes[1][0].GT)
	assert.Equal(t, "./.", genotypes[1][1].GT)
}
