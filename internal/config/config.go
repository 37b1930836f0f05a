// Package config loads vcf-pg-loader's runtime configuration from
// environment variables, a YAML file, and built-in defaults, in that
// precedence order (Viper's own: explicit Set > flag > env > config file > default).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// DatabaseConfig holds pgx/pgxpool connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig holds the cross-load Redis cache settings (C7 cache layer).
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig holds logrus output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// PHIConfig holds sample-ID anonymization settings (C7).
type PHIConfig struct {
	MasterKeyHex       string  `mapstructure:"master_key_hex"`
	RequireEncryption  bool    `mapstructure:"require_encryption"`
	LocalCacheSize     int     `mapstructure:"local_cache_size"`
	ReverseLookupRPS   float64 `mapstructure:"reverse_lookup_rps"`
}

// AuditConfig holds the hash-chained audit log settings (C8).
type AuditConfig struct {
	BatchThreshold int           `mapstructure:"batch_threshold"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	FallbackPath   string        `mapstructure:"fallback_path"`
}

// RetryConfig holds the capped exponential backoff used around batch
// upserts and any other circuit-breaker-guarded database write (C9).
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	BackoffFactor float64      `mapstructure:"backoff_factor"`
}

// LoaderConfig holds C9's own tunables.
type LoaderConfig struct {
	BatchSize          int     `mapstructure:"batch_size"`
	HapMap3Enabled     bool    `mapstructure:"hapmap3_enabled"`
	HapMap3Path        string  `mapstructure:"hapmap3_path"`
	MinImputationScore float64 `mapstructure:"min_imputation_score"`
	ReferenceGenome    string  `mapstructure:"reference_genome"`
	ApplyAdjFilter     bool    `mapstructure:"apply_adj_filter"`
	RequireTLS         bool    `mapstructure:"require_tls"`
	Retry              RetryConfig `mapstructure:"retry"`
}

// Config is the fully-resolved vcf-pg-loader configuration.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Database    DatabaseConfig `mapstructure:"database"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	PHI         PHIConfig      `mapstructure:"phi"`
	Audit       AuditConfig    `mapstructure:"audit"`
	Loader      LoaderConfig   `mapstructure:"loader"`
}

// Manager loads and validates Config using Viper.
type Manager struct {
	config *Config
}

// NewManager loads configuration from config.yaml (if present), then
// VCF_PG_LOADER_*-prefixed environment variables, then built-in defaults.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/vcf-pg-loader/")

	viper.SetEnvPrefix("VCF_PG_LOADER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A few settings are named by a documented external-interface
	// contract rather than the mapstructure-derived key, so bind them
	// explicitly on top of the automatic VCF_PG_LOADER_<SECTION>_<FIELD>
	// mapping above.
	viper.BindEnv("phi.master_key_hex", "VCF_PG_LOADER_MASTER_KEY", "VCF_PG_LOADER_PHI_KEY")
	viper.BindEnv("loader.require_tls", "VCF_PG_LOADER_REQUIRE_TLS")
	viper.BindEnv("database.password", "VCF_PG_LOADER_DB_PASSWORD", "PGPASSWORD")

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = cfg
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "vcf_pg_loader")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("phi.require_encryption", false)
	viper.SetDefault("phi.local_cache_size", 10000)
	viper.SetDefault("phi.reverse_lookup_rps", 5)

	viper.SetDefault("audit.batch_threshold", 100)
	viper.SetDefault("audit.flush_interval", "5s")
	viper.SetDefault("audit.fallback_path", "/var/log/vcf-pg-loader/audit-fallback.jsonl")

	viper.SetDefault("loader.batch_size", 10000)
	viper.SetDefault("loader.hapmap3_enabled", true)
	viper.SetDefault("loader.min_imputation_score", 0.0)
	viper.SetDefault("loader.reference_genome", "GRCh38")
	viper.SetDefault("loader.apply_adj_filter", true)
	viper.SetDefault("loader.require_tls", true)
	viper.SetDefault("loader.retry.max_attempts", 3)
	viper.SetDefault("loader.retry.base_delay", "200ms")
	viper.SetDefault("loader.retry.backoff_factor", 2.0)
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Reload re-reads configuration from disk and environment.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate checks required fields and value ranges.
func (m *Manager) Validate() error {
	cfg := m.config

	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if cfg.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}
	if cfg.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if cfg.PHI.RequireEncryption && cfg.PHI.MasterKeyHex == "" {
		return fmt.Errorf("phi.master_key_hex is required when phi.require_encryption is true")
	}
	if cfg.Loader.BatchSize <= 0 {
		return fmt.Errorf("loader.batch_size must be positive")
	}
	if cfg.Loader.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("loader.retry.max_attempts must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}

// DatabaseConnectionString returns a pgx/lib-pq DSN built from the
// database config.
func (m *Manager) DatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// LoadBatchConfig translates the resolved Loader section into the
// domain-level config the loader orchestration consumes.
func (m *Manager) LoadBatchConfig() domain.LoadBatchConfig {
	l := m.config.Loader
	adj := domain.AdjFilterConfig{}
	if l.ApplyAdjFilter {
		adj = domain.DefaultAdjFilterConfig()
	}
	return domain.LoadBatchConfig{
		BatchSize:          l.BatchSize,
		HapMap3Enabled:     l.HapMap3Enabled,
		HapMap3Path:        l.HapMap3Path,
		MinImputationScore: l.MinImputationScore,
		RequireEncryption:  m.config.PHI.RequireEncryption,
		AdjFilter:          adj,
		ReferenceGenome:    l.ReferenceGenome,
	}
}

// IsProduction reports whether the resolved environment is "production".
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
