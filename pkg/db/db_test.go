package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labportal/pkg/config"
)

func TestConnStrings(t *testing.T) {
	cfg := config.Config{
		DB: config.DBConfig{Host: "db", Port: "5432", Name: "labs", User: "u", Password: "p"},
	}
	assert.Equal(t, "postgres://u:p@db:5432/labs?sslmode=disable", runtimeConnString(cfg))
	assert.Equal(t, runtimeConnString(cfg), migrationConnString(cfg))

	cfg.DatabaseURL = "postgres://pooler/labs?pgbouncer=true"
	cfg.DirectURL = "postgres://direct/labs"
	assert.Equal(t, cfg.DatabaseURL, runtimeConnString(cfg))
	assert.Equal(t, cfg.DirectURL, migrationConnString(cfg))
}

func TestTunePool(t *testing.T) {
	pcfg, err := pgxpool.ParseConfig("postgres://u:p@db:5432/labs?sslmode=disable")
	require.NoError(t, err)

	tunePool(pcfg, config.DBConfig{MaxConns: 12, LockTimeout: 3 * time.Second})
	assert.Equal(t, int32(12), pcfg.MaxConns)
	assert.Equal(t, "labportal", pcfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "3000", pcfg.ConnConfig.RuntimeParams["lock_timeout"])

	pcfg, err = pgxpool.ParseConfig("postgres://u:p@db:5432/labs?application_name=ops")
	require.NoError(t, err)
	tunePool(pcfg, config.DBConfig{})
	assert.Equal(t, "ops", pcfg.ConnConfig.RuntimeParams["application_name"])
	_, set := pcfg.ConnConfig.RuntimeParams["lock_timeout"]
	assert.False(t, set)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, Retryable(fmt.Errorf("issue: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, Retryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(nil))
}
