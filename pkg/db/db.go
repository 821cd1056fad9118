package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"labportal/pkg/config"
)

const (
	applicationName = "labportal"

	// txAttempts bounds how often WithTx reruns fn after Postgres aborts it.
	txAttempts = 3

	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
)

// Open connects a pool and pings it. Poolers that cannot hold prepared statements
// (pgbouncer=true in the DSN) get the simple protocol.
func Open(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	connString := runtimeConnString(cfg)

	pcfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(connString), "pgbouncer=true") {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		pcfg.ConnConfig.StatementCacheCapacity = 0
		pcfg.ConnConfig.DescriptionCacheCapacity = 0
	}
	tunePool(pcfg, cfg.DB)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// tunePool sizes the pool and sets per-session parameters. lock_timeout makes a
// transaction stuck behind a request, component or slot lock fail instead of hanging.
func tunePool(pcfg *pgxpool.Config, c config.DBConfig) {
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	pcfg.MaxConnIdleTime = 5 * time.Minute

	params := pcfg.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}
	if c.LockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(c.LockTimeout.Milliseconds(), 10)
	}
}

// WithTx runs fn inside a read-committed transaction. Row locks taken by fn
// (SELECT ... FOR UPDATE, advisory xact locks) are released on commit or rollback.
// When Postgres aborts the transaction as a deadlock victim or on a serialization
// failure, fn runs again from scratch in a new transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = runTx(ctx, pool, fn)
		if !Retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Retryable reports whether err is Postgres giving up on a transaction that would
// succeed if run again.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDeadlockDetected || pgErr.Code == codeSerializationFailure
}

func runtimeConnString(cfg config.Config) string {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return cfg.DatabaseURL
	}
	return dsn(cfg.DB)
}

func migrationConnString(cfg config.Config) string {
	if strings.TrimSpace(cfg.DirectURL) != "" {
		return cfg.DirectURL
	}
	return runtimeConnString(cfg)
}

func dsn(cfg config.DBConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslmode,
	)
}
