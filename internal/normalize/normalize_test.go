package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"
)

func TestNormalizeTrailingTrim(t *testing.T) {
	n := Normalize(100, "ATG", "AG")
	assert.Equal(t, uint64(100), n.Pos)
	assert.Equal(t, "AT", n.Ref)
	assert.Equal(t, "A", n.Alt)
	assert.True(t, n.Changed)
	assert.Equal(t, "ATG", n.OriginalRef)
}

func TestNormalizeLeadingAndTrailingTrim(t *testing.T) {
	n := Normalize(200, "GATC", "GTTC")
	assert.Equal(t, uint64(201), n.Pos)
	assert.Equal(t, "AT", n.Ref)
	assert.Equal(t, "TT", n.Alt)
	assert.True(t, n.Changed)
}

func TestNormalizeSNPUnchanged(t *testing.T) {
	n := Normalize(300, "A", "G")
	assert.Equal(t, uint64(300), n.Pos)
	assert.Equal(t, "A", n.Ref)
	assert.Equal(t, "G", n.Alt)
	assert.False(t, n.Changed)
}

func TestNormalizeIdempotent(t *testing.T) {
	cases := [][3]interface{}{
		{uint64(100), "ATG", "AG"},
		{uint64(200), "GATC", "GTTC"},
		{uint64(300), "A", "G"},
		{uint64(1), "AAAA", "AAAAG"},
	}
	for _, c := range cases {
		n := Normalize(c[0].(uint64), c[1].(string), c[2].(string))
		assert.True(t, Idempotent(n), "not idempotent: %+v", n)
	}
}

func TestDecomposeMultiallelicNumberA(t *testing.T) {
	info := map[string]infoval.Value{
		"AF": infoval.List([]infoval.Value{infoval.Float(0.1), infoval.Float(0.2), infoval.Float(0.3)}),
	}
	numbers := map[string]InfoNumber{"AF": NumberPerAllele}

	decomposed := Decompose(100, "A", "G,T,C", info, numbers)
	assert.Len(t, decomposed, 3)

	want := []float64{0.1, 0.2, 0.3}
	for i, d := range decomposed {
		f, ok := d.Info["AF"].Float()
		assert.True(t, ok)
		assert.InDelta(t, want[i], f, 1e-9)
	}
}

func TestDecomposeCount(t *testing.T) {
	decomposed := Decompose(100, "A", "G,T,C", nil, nil)
	assert.Len(t, decomposed, 3)
	for i, alt := range []string{"G", "T", "C"} {
		assert.Equal(t, alt, decomposed[i].Normalized.Alt)
	}
}

func TestDecomposeDropsAlleleEqualToRef(t *testing.T) {
	decomposed := Decompose(100, "A", "A", nil, nil)
	assert.Empty(t, decomposed)
}

func TestDecomposeDropsOnlyTheMatchingAlleleInMultiallelic(t *testing.T) {
	decomposed := Decompose(100, "A", "A,G", nil, nil)
	assert.Len(t, decomposed, 1)
	assert.Equal(t, "G", decomposed[0].Normalized.Alt)
	assert.Equal(t, 1, decomposed[0].Index)
}

func TestDecomposeDropsAlleleEqualToRefAfterTrimming(t *testing.T) {
	// "AT" vs "AT" trims down to a single shared base on each side, but the
	// untrimmed alleles are already identical: still dropped.
	decomposed := Decompose(100, "AT", "AT", nil, nil)
	assert.Empty(t, decomposed)
}
