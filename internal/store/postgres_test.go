package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triangulate/internal/db"
	"github.com/sells-group/triangulate/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS evidence_records`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Record(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTableName(evidenceTable)}, evidenceColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "evidence_records"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.Record(context.Background(), []model.EvidenceRecord{record("1", "A"), record("2", "B")})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	err := s.Record(context.Background(), []model.EvidenceRecord{record("1", "A")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: record evidence")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_KnownSources(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := mock.NewRows([]string{"sources"}).
		AddRow([]byte(`["https://cipc.gov.za/1"]`)).
		AddRow([]byte(`["https://press.example.com/a","https://cipc.gov.za/1"]`))
	mock.ExpectQuery(`SELECT sources FROM evidence_records WHERE row_id = \$1`).
		WithArgs("A").
		WillReturnRows(rows)

	got, err := s.KnownSources(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cipc.gov.za/1", "https://press.example.com/a"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_KnownSourcesQueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT sources`).WithArgs("A").WillReturnError(errors.New("boom"))

	_, err := s.KnownSources(context.Background(), "A")
	assert.ErrorContains(t, err, "query sources for A")
	assert.NoError(t, mock.ExpectationsWereMet())
}
