package imputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/infoval"
)

func TestDetectSourceMinimac4(t *testing.T) {
	header := "##source=Minimac4\n##INFO=<ID=R2,Number=1,Type=Float,Description=\"R2\">"
	assert.Equal(t, SourceMinimac4, DetectSource(header))
}

func TestDetectSourceBeagle(t *testing.T) {
	header := "##source=beagle.r1399\n##INFO=<ID=DR2,Number=1,Type=Float,Description=\"DR2\">"
	assert.Equal(t, SourceBeagle, DetectSource(header))
}

func TestDetectSourceImpute2FieldOnly(t *testing.T) {
	header := "##INFO=<ID=INFO,Number=1,Type=Float,Description=\"Imputation info score\">"
	assert.Equal(t, SourceImpute2, DetectSource(header))
}

func TestExtractMetricsMinimac4(t *testing.T) {
	info := map[string]infoval.Value{
		"R2":      infoval.Float(0.85),
		"IMPUTED": infoval.Flag(),
	}
	m := ExtractMetrics(info, SourceMinimac4)
	assert.NotNil(t, m.InfoScore)
	assert.InDelta(t, 0.85, *m.InfoScore, 1e-9)
	assert.True(t, m.IsImputed)
	assert.False(t, m.IsTyped)
}

func TestExtractMetricsBeagleInfersTyped(t *testing.T) {
	info := map[string]infoval.Value{
		"DR2": infoval.Float(1.0),
	}
	m := ExtractMetrics(info, SourceBeagle)
	assert.False(t, m.IsImputed)
	assert.True(t, m.IsTyped, "DR2>=1.0 with no IMP flag should infer typed")
}

func TestBelowMinimum(t *testing.T) {
	score := 0.3
	min := 0.8
	assert.True(t, BelowMinimum(&score, &min))
	assert.False(t, BelowMinimum(&score, nil))
	assert.False(t, BelowMinimum(nil, &min))
}
