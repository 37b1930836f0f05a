package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
}

func TestNewManagerAppliesDefaults(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 10000, cfg.Loader.BatchSize)
	assert.True(t, cfg.Loader.HapMap3Enabled)
	assert.Equal(t, "GRCh38", cfg.Loader.ReferenceGenome)
	assert.Equal(t, 3, cfg.Loader.Retry.MaxAttempts)
}

func TestManagerEnvOverride(t *testing.T) {
	resetViper(t)
	os.Setenv("VCF_PG_LOADER_LOADER_BATCH_SIZE", "500")
	defer os.Unsetenv("VCF_PG_LOADER_LOADER_BATCH_SIZE")

	m, err := NewManager()
	require.NoError(t, err)
	assert.Equal(t, 500, m.GetConfig().Loader.BatchSize)
}

func TestValidateRequiresMasterKeyWhenEncryptionRequired(t *testing.T) {
	resetViper(t)
	os.Setenv("VCF_PG_LOADER_PHI_REQUIRE_ENCRYPTION", "true")
	defer os.Unsetenv("VCF_PG_LOADER_PHI_REQUIRE_ENCRYPTION")

	m, err := NewManager()
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	resetViper(t)
	os.Setenv("VCF_PG_LOADER_LOGGING_LEVEL", "bogus")
	defer os.Unsetenv("VCF_PG_LOADER_LOGGING_LEVEL")

	m, err := NewManager()
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}

func TestLoadBatchConfigTranslation(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)

	lbc := m.LoadBatchConfig()
	assert.Equal(t, m.GetConfig().Loader.BatchSize, lbc.BatchSize)
	assert.Equal(t, m.GetConfig().Loader.ReferenceGenome, lbc.ReferenceGenome)
}
