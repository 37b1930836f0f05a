// Command vcf-pg-loader ingests one VCF file into the configured
// PostgreSQL store: normalizing, annotating, anonymizing, and journaling
// the run, then exiting with a status code a calling pipeline can branch
// on (see the exit code table in SPEC_FULL.md §6).
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/audit"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/config"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/database"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/loader"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/phi"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/refdata"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/repository"
)

const (
	exitClean             = 0
	exitOperationalFailure = 1
	exitInputFileError    = 2
	exitIntegrityFailure  = 3
	exitPermissionDenied  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	vcfPath := pflag.StringP("vcf", "f", "", "path to the VCF file to load")
	actorUser := pflag.String("actor-user", "cli", "user ID attributed to audit events for this run")
	migrationsPath := pflag.String("migrations", "migrations", "path to the migration files directory")
	skipMigrate := pflag.Bool("skip-migrate", false, "skip running pending migrations before loading")
	importHapMap3 := pflag.String("import-hapmap3", "", "import a HapMap3 reference panel TSV (rsid/chrom/position/a1/a2) instead of loading a VCF")
	importLDBlock := pflag.String("import-ldblock", "", "import an LD-block BED file instead of loading a VCF")
	panelName := pflag.String("panel-name", "", "reference panel name to tag imported HapMap3 rows with (default hapmap3_<reference-genome>)")
	pflag.Parse()

	log := logrus.New()

	if *vcfPath == "" && *importHapMap3 == "" && *importLDBlock == "" {
		fmt.Fprintln(os.Stderr, "ERROR: one of --vcf, --import-hapmap3, --import-ldblock is required")
		return exitInputFileError
	}
	for _, path := range []string{*vcfPath, *importHapMap3, *importLDBlock} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: cannot read input file: %v\n", err)
			return exitInputFileError
		}
	}

	configManager, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: loading configuration: %v\n", err)
		return exitOperationalFailure
	}
	if err := configManager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid configuration: %v\n", err)
		return exitOperationalFailure
	}

	cfg := configManager.GetConfig()
	configureLogging(log, cfg.Logging)

	if cfg.Loader.RequireTLS && cfg.Database.SSLMode == "disable" {
		fmt.Fprintln(os.Stderr, "ERROR: TLS is required but database.ssl_mode is disable")
		return exitPermissionDenied
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("shutdown signal received, cancelling in-flight load")
		cancel()
	}()

	pool, err := database.NewConnection(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		Database:    cfg.Database.Database,
		Username:    cfg.Database.Username,
		Password:    cfg.Database.Password,
		MaxConns:    int32(cfg.Database.MaxOpenConns),
		MinConns:    int32(cfg.Database.MaxIdleConns),
		MaxConnLife: cfg.Database.ConnMaxLifetime,
		MaxConnIdle: cfg.Database.ConnMaxLifetime,
		SSLMode:     cfg.Database.SSLMode,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: connecting to database: %v\n", err)
		return exitOperationalFailure
	}
	defer pool.Close()

	if !*skipMigrate {
		if err := runMigrations(configManager.DatabaseConnectionString(), *migrationsPath, log); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: running migrations: %v\n", err)
			return exitOperationalFailure
		}
	}

	if *importHapMap3 != "" {
		name := *panelName
		if name == "" {
			name = "hapmap3_" + cfg.Loader.ReferenceGenome
		}
		n, err := importHapMap3Panel(ctx, pool, *importHapMap3, name, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: importing hapmap3 panel: %v\n", err)
			return exitInputFileError
		}
		log.WithFields(logrus.Fields{"panel_name": name, "entries": n}).Info("hapmap3 panel imported")
		return exitClean
	}
	if *importLDBlock != "" {
		n, err := importLDBlockBED(ctx, pool, *importLDBlock, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: importing ld-block bed: %v\n", err)
			return exitInputFileError
		}
		log.WithField("blocks", n).Info("ld-block bed imported")
		return exitClean
	}

	auditLogger, auditFallback, err := buildAuditLogger(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: initializing audit logger: %v\n", err)
		return exitOperationalFailure
	}
	defer auditLogger.Close()
	if info, statErr := os.Stat(auditFallback); statErr == nil && info.Size() > 0 {
		log.WithField("fallback_path", auditFallback).
			Warn("audit fallback file is non-empty; prior audit entries may not have reached the store")
	}

	anonymizer, err := buildAnonymizer(cfg, pool, auditLogger, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: initializing PHI anonymizer: %v\n", err)
		return exitOperationalFailure
	}

	variantRepo := repository.NewVariantRepository(pool.Pool, log)
	genotypeRepo := repository.NewGenotypeRepository(pool.Pool, log)
	loadBatchRepo := repository.NewLoadBatchRepository(pool.Pool, log)
	hapmapRepo := repository.NewHapMap3Repository(pool.Pool, log)

	breaker := loader.NewCircuitBreaker(log)
	ld := loader.NewLoader(variantRepo, genotypeRepo, loadBatchRepo, hapmapRepo, anonymizer, auditLogger, breaker, cfg.Loader.Retry, log)

	actor := domain.CurrentActor{UserID: *actorUser, SessionID: uuid.NewString()}

	result, err := ld.Load(ctx, *vcfPath, configManager.LoadBatchConfig(), actor)
	if err != nil {
		return exitCodeFor(err)
	}

	log.WithFields(logrus.Fields{
		"load_batch_id":   result.LoadBatchID,
		"variants_loaded": result.VariantsLoaded,
		"is_reload":       result.IsReload,
	}).Info("load finished")
	return exitClean
}

// exitCodeFor maps a failed load's error taxonomy to the documented
// process exit code.
func exitCodeFor(err error) int {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	var loaderErr *domain.LoaderError
	if errors.As(err, &loaderErr) {
		switch loaderErr.Code {
		case domain.ErrInputMalformed:
			return exitInputFileError
		case domain.ErrPHIEncryption:
			return exitPermissionDenied
		case domain.ErrCancelled:
			return exitOperationalFailure
		default:
			return exitOperationalFailure
		}
	}
	return exitOperationalFailure
}

func configureLogging(log *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	log.SetOutput(out)
}

// importHapMap3Panel parses a HapMap3 reference panel TSV (optionally
// gzipped) and bulk-loads it into hapmap3_entries under panelName.
func importHapMap3Panel(ctx context.Context, pool *database.DB, path, panelName string, log *logrus.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening hapmap3 file: %w", err)
	}
	defer f.Close()

	src, err := refdata.OpenMaybeGzip(f, path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	entries, err := refdata.ParseHapMap3TSV(src, panelName)
	if err != nil {
		return 0, err
	}

	repo := repository.NewHapMap3Repository(pool.Pool, log)
	if err := repo.ImportBatch(ctx, entries); err != nil {
		return 0, fmt.Errorf("importing hapmap3 entries: %w", err)
	}
	return len(entries), nil
}

// importLDBlockBED parses an LD-block BED file and bulk-loads it into
// ld_blocks. No LD-assignment logic runs here; it is a plain lookup-table
// import feeding the same repository layer as HapMap3.
func importLDBlockBED(ctx context.Context, pool *database.DB, path string, log *logrus.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening ld-block bed file: %w", err)
	}
	defer f.Close()

	blocks, err := refdata.ParseBED(f)
	if err != nil {
		return 0, err
	}

	repo := repository.NewLDBlockRepository(pool.Pool, log)
	if err := repo.ImportBatch(ctx, blocks); err != nil {
		return 0, fmt.Errorf("importing ld blocks: %w", err)
	}
	return len(blocks), nil
}

func runMigrations(databaseURL, migrationsPath string, log *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, migrationsPath, log)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(context.Background())
}

func buildAuditLogger(cfg *config.Config, log *logrus.Logger) (*audit.Logger, string, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database,
		cfg.Database.Username, cfg.Database.Password, cfg.Database.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("opening audit store connection: %w", err)
	}

	store, err := audit.NewPostgresStore(db)
	if err != nil {
		return nil, "", fmt.Errorf("building audit store: %w", err)
	}

	fallbackPath := cfg.Audit.FallbackPath
	fallback, err := audit.NewFileFallback(fallbackPath)
	if err != nil {
		return nil, "", fmt.Errorf("opening audit fallback file: %w", err)
	}

	return audit.NewLogger(store, fallback, log), fallbackPath, nil
}

func buildAnonymizer(cfg *config.Config, pool *database.DB, auditLogger *audit.Logger, log *logrus.Logger) (*phi.Anonymizer, error) {
	store := repository.NewSampleMappingRepository(pool.Pool, log)

	var encryptor *phi.Encryptor
	if cfg.PHI.MasterKeyHex != "" {
		key, err := decodeMasterKey(cfg.PHI.MasterKeyHex)
		if err != nil {
			if cfg.PHI.RequireEncryption {
				return nil, fmt.Errorf("decoding phi master key: %w", err)
			}
			log.WithError(err).Warn("phi master key malformed, proceeding without encryption")
		} else {
			encryptor, err = phi.NewEncryptor(key)
			if err != nil && cfg.PHI.RequireEncryption {
				return nil, fmt.Errorf("building phi encryptor: %w", err)
			}
		}
	} else if cfg.PHI.RequireEncryption {
		return nil, fmt.Errorf("phi.require_encryption is set but no master key is configured")
	}

	anonCfg := phi.Config{
		Store:             store,
		Audit:             auditLogger,
		Encryptor:         encryptor,
		LocalCacheSize:    cfg.PHI.LocalCacheSize,
		ReverseLookupRPS:  cfg.PHI.ReverseLookupRPS,
		RequireEncryption: cfg.PHI.RequireEncryption,
	}
	if cfg.Cache.RedisURL != "" {
		if cross, err := phi.NewCrossLoadCache(cfg.Cache.RedisURL, cfg.Cache.DefaultTTL); err != nil {
			log.WithError(err).Warn("redis cross-load cache unavailable, falling back to per-process cache only")
		} else {
			anonCfg.CrossLoadCache = cross
		}
	}

	return phi.New(anonCfg)
}

// decodeMasterKey accepts either base64 (the documented
// VCF_PG_LOADER_MASTER_KEY format) or hex, since config.PHIConfig's
// master_key_hex setting predates the env var's base64 convention.
func decodeMasterKey(s string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := hex.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("master key must be 32 bytes, base64- or hex-encoded")
}
