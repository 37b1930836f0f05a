package qc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHWEPerfectEquilibrium(t *testing.T) {
	p := HWExactPValue(50, 25, 25)
	assert.InDelta(t, 1.0, p, 0.01)
}

func TestHWEExcessHeterozygotes(t *testing.T) {
	p := HWExactPValue(80, 10, 10)
	assert.Less(t, p, 0.001)
}

func TestHWEDeficitHeterozygotes(t *testing.T) {
	p := HWExactPValue(10, 45, 45)
	assert.Less(t, p, 0.001)
}

func TestHWEAllHomozygousRef(t *testing.T) {
	p := HWExactPValue(0, 100, 0)
	assert.Equal(t, 1.0, p)
}

func TestHWEAllHomozygousAlt(t *testing.T) {
	p := HWExactPValue(0, 0, 100)
	assert.Equal(t, 1.0, p)
}

func TestHWEZeroSamples(t *testing.T) {
	p := HWExactPValue(0, 0, 0)
	assert.True(t, math.IsNaN(p))
}

func TestHWEBoundsAndSymmetry(t *testing.T) {
	cases := [][3]int{{25, 25, 25}, {10, 80, 10}, {5, 3, 40}, {0, 1, 0}}
	for _, c := range cases {
		p := HWExactPValue(c[0], c[1], c[2])
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)

		swapped := HWExactPValue(c[0], c[2], c[1])
		assert.InDelta(t, p, swapped, 1e-9, "HWE p-value must be symmetric under hom-ref/hom-alt swap")
	}
}

func TestHWERareVariant(t *testing.T) {
	p := HWExactPValue(20, 80, 0)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}
