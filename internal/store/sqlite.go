package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/triangulate/internal/model"
)

// SQLiteStore is an evidence sink backed by modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS evidence_records (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	row_id       TEXT NOT NULL,
	organisation TEXT NOT NULL,
	changes      TEXT NOT NULL,
	sources      TEXT NOT NULL,
	notes        TEXT NOT NULL,
	confidence   INTEGER NOT NULL,
	status       TEXT NOT NULL,
	recorded_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_records_row_id ON evidence_records(row_id);
CREATE INDEX IF NOT EXISTS idx_evidence_records_run_id ON evidence_records(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts the batch in one transaction. Records already stored
// under the same id are left untouched.
func (s *SQLiteStore) Record(ctx context.Context, records []model.EvidenceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO evidence_records
		(id, run_id, row_id, organisation, changes, sources, notes, confidence, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, r := range records {
		e, err := encode(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.RunID, r.RowID, r.Organisation,
			string(e.changes), string(e.sources), string(e.notes),
			r.Confidence, string(r.Status), r.Timestamp.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert evidence for %s", r.RowID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// KnownSources returns every source cited by earlier accepted changes to
// the row.
func (s *SQLiteStore) KnownSources(ctx context.Context, rowID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sources FROM evidence_records WHERE row_id = ? ORDER BY recorded_at`, rowID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query sources for %s", rowID)
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sources")
		}
		blobs = append(blobs, []byte(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate sources")
	}
	return mergeSources(blobs)
}
