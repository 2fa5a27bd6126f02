package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// AppendConfig describes an idempotent bulk append.
type AppendConfig struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns being inserted
	Key     string   // unique column; rows whose key already exists are skipped
}

// AppendOnce bulk-inserts rows, skipping any whose key is already present,
// so a retried batch never duplicates entries.
//  1. COPY rows into a temp table dropped on commit
//  2. INSERT INTO target SELECT ... FROM temp ON CONFLICT (key) DO NOTHING
func AppendOnce(ctx context.Context, pool Pool, cfg AppendConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: append: no columns specified")
	}
	if cfg.Key == "" {
		return 0, eris.New("db: append: no key column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: append: begin tx")
	}

	n, err := appendTx(ctx, tx, cfg, rows)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: append: commit tx")
	}
	return n, nil
}

func appendTx(ctx context.Context, tx pgx.Tx, cfg AppendConfig, rows [][]any) (int64, error) {
	temp := TempTableName(cfg.Table)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{temp}.Sanitize(),
		SanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: append: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: append: COPY into temp table for %s", cfg.Table)
	}

	cols := QuoteAndJoin(cfg.Columns)
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		SanitizeTable(cfg.Table),
		cols,
		cols,
		pgx.Identifier{temp}.Sanitize(),
		pgx.Identifier{cfg.Key}.Sanitize(),
	)
	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: append: INSERT ON CONFLICT for %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// TempTableName derives the staging table name for table.
func TempTableName(table string) string {
	return "_tmp_append_" + strings.ReplaceAll(table, ".", "_")
}

// SanitizeTable quotes a table name, handling "schema.table".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
