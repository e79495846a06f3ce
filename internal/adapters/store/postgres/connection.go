// Package postgres implements the storage capabilities of the real-time core
// on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Files    string
	Versions string
	Members  string
	Activity string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Files:    prefix + "files",
		Versions: prefix + "file_versions",
		Members:  prefix + "workspace_members",
		Activity: prefix + "activity_logs",
	}
}

// CreateConnectionPool parses databaseURL, sizes the pool and pings it.
// Port 6543 (transaction pooler) switches to describe caching since the
// pooler cannot hold prepared statements; an explicit
// default_query_exec_mode in the URL wins.
func CreateConnectionPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		log.Debug().Str("module", "store.postgres").Msg("auto-configured cache_describe mode for pooler compatibility")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables the core reads and writes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	r := strings.NewReplacer(
		"{{files}}", tables.Files,
		"{{file_versions}}", tables.Versions,
		"{{workspace_members}}", tables.Members,
		"{{activity_logs}}", tables.Activity,
	)
	if _, err := pool.Exec(ctx, r.Replace(schemaSQL)); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
