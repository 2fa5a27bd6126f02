package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/db"
	"github.com/sells-group/triangulate/internal/model"
)

const evidenceTable = "evidence_records"

var evidenceColumns = []string{
	"id", "run_id", "row_id", "organisation", "changes", "sources", "notes", "confidence", "status", "recorded_at",
}

// PostgresStore is an evidence sink backed by pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool. Zero pool
// sizes keep the defaults.
func NewPostgres(ctx context.Context, connString string, poolCfg config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg.MaxConns > 0 {
		maxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		minConns = poolCfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS evidence_records (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	row_id       TEXT NOT NULL,
	organisation TEXT NOT NULL,
	changes      JSONB NOT NULL,
	sources      JSONB NOT NULL,
	notes        JSONB NOT NULL,
	confidence   INTEGER NOT NULL CHECK (confidence BETWEEN 0 AND 100),
	status       TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_records_row_id ON evidence_records(row_id);
CREATE INDEX IF NOT EXISTS idx_evidence_records_run_id ON evidence_records(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Record appends the batch. Retrying a batch that partly landed is safe:
// ids already present are skipped.
func (s *PostgresStore) Record(ctx context.Context, records []model.EvidenceRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		e, err := encode(r)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			r.ID, r.RunID, r.RowID, r.Organisation,
			e.changes, e.sources, e.notes,
			int32(r.Confidence), string(r.Status), r.Timestamp.UTC(),
		})
	}
	_, err := db.AppendOnce(ctx, s.pool, db.AppendConfig{Table: evidenceTable, Columns: evidenceColumns, Key: "id"}, rows)
	return eris.Wrap(err, "postgres: record evidence")
}

// KnownSources returns every source cited by earlier accepted changes to
// the row.
func (s *PostgresStore) KnownSources(ctx context.Context, rowID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT sources FROM evidence_records WHERE row_id = $1 ORDER BY recorded_at`, rowID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query sources for %s", rowID)
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sources")
		}
		blobs = append(blobs, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate sources")
	}
	return mergeSources(blobs)
}
