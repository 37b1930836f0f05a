package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Config holds database configuration. Unlike a request-serving pool sized
// for many short-lived client connections, MaxConns here only needs to cover
// the number of loads running concurrently in this process: the parse →
// transform → upsert pipeline holds one connection for the lifetime of a
// single load (§5), so MaxConns is a concurrent-load ceiling, not a
// concurrent-request ceiling.
type Config struct {
	Host        string
	Port        int
	Database    string
	Username    string
	Password    string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
	SSLMode     string
}

// DB wraps the pgxpool.Pool with additional functionality
type DB struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewConnection establishes the pool backing every load this process runs.
// It is opened once at process startup and shared across concurrent loads,
// each of which checks out one connection for the duration of its batch
// pipeline and returns it when the load finishes.
func NewConnection(ctx context.Context, config Config, logger *logrus.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	// Configure connection pool settings
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = config.MaxConnLife
	poolConfig.MaxConnIdleTime = config.MaxConnIdle

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":                 config.Host,
		"port":                 config.Port,
		"database":             config.Database,
		"max_concurrent_loads": config.MaxConns,
		"min_conns":            config.MinConns,
	}).Info("database connection pool established")

	return &DB{
		Pool: pool,
		log:  logger,
	}, nil
}

// Close drains in-flight loads and closes the pool. Called once at process
// shutdown, after every load's goroutine has returned its connection.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("database connection pool closed")
	}
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats returns connection pool statistics; AcquiredConns approximates the
// number of loads currently in flight.
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}
