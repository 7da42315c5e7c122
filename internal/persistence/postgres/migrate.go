// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	embeddedmigrations "github.com/adiadia/hitl-gateway/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaMigrationLockID int64 = 0x4849544c5f4d4947 // "HITL_MIG"

var requiredTables = []string{
	"workflows",
	"approval_requests",
	"approval_history",
	"task_events",
}

// requiredColumns lists, per table, the columns the repository cannot run
// without. Older databases missing one of them need AUTO_MIGRATE.
var requiredColumns = map[string][]string{
	"workflows":         {"id", "status", "current_checkpoint", "current_approval_id", "updated_at"},
	"approval_requests": {"approval_id", "workflow_id", "seq"},
	"approval_history":  {"workflow_id", "approval_id", "decision"},
	"task_events":       {"workflow_id", "task_id"},
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type SchemaHealthChecker struct {
	pool *pgxpool.Pool
}

func NewSchemaHealthChecker(pool *pgxpool.Pool) *SchemaHealthChecker {
	return &SchemaHealthChecker{pool: pool}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.pool)
}

// EnsureSchema applies pending embedded migrations under a session advisory
// lock so concurrent gateway replicas never race on DDL.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection for migrations: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, unlockErr := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); unlockErr != nil {
			logger.Error("migration unlock failed", "error", unlockErr)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			filename TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := embeddedmigrations.Ordered()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(migrations) == 0 {
		return errors.New("no embedded migrations found")
	}

	applied, err := appliedChecksums(ctx, conn)
	if err != nil {
		return err
	}

	count := 0
	for _, migration := range migrations {
		if sum, ok := applied[migration.Version]; ok {
			if sum != migration.Checksum {
				logger.Warn("applied migration differs from embedded file",
					"file", migration.Name,
					"version", migration.Version,
				)
			}
			continue
		}

		logger.Info("applying migration", "file", migration.Name, "version", migration.Version)
		if err := applyMigration(ctx, conn, migration); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		count++
	}

	logger.Info("schema up to date",
		"applied", count,
		"total", len(migrations),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return SchemaReady(ctx, pool)
}

func appliedChecksums(ctx context.Context, conn *pgxpool.Conn) (map[int]string, error) {
	rows, err := conn.Query(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version int
			sum     string
		)
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = sum
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, migration embeddedmigrations.File) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, migration.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, filename, checksum)
		VALUES ($1, $2, $3)
	`, migration.Version, migration.Name, migration.Checksum); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SchemaReady reports an error naming every missing table or column.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	query, args, err := schemaQuery()
	if err != nil {
		return fmt.Errorf("build schema query: %w", err)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	defer rows.Close()

	present := make(map[string]map[string]bool, len(requiredTables))
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("scan schema row: %w", err)
		}
		if present[table] == nil {
			present[table] = make(map[string]bool)
		}
		present[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	return missingSchema(present)
}

func schemaQuery() (string, []any, error) {
	return psql.
		Select("table_name", "column_name").
		From("information_schema.columns").
		Where(sq.Eq{"table_schema": "public", "table_name": requiredTables}).
		ToSql()
}

func missingSchema(present map[string]map[string]bool) error {
	var tables, columns []string
	for _, table := range requiredTables {
		cols, ok := present[table]
		if !ok {
			tables = append(tables, table)
			continue
		}
		for _, column := range requiredColumns[table] {
			if !cols[column] {
				columns = append(columns, table+"."+column)
			}
		}
	}

	var errs []error
	if len(tables) > 0 {
		errs = append(errs, fmt.Errorf("required tables missing: %s", strings.Join(tables, ", ")))
	}
	if len(columns) > 0 {
		errs = append(errs, fmt.Errorf("required columns missing: %s", strings.Join(columns, ", ")))
	}
	return errors.Join(errs...)
}
