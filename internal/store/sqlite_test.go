package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triangulate/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func countRecords(t *testing.T, st *SQLiteStore) int {
	t.Helper()
	var n int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM evidence_records`).Scan(&n))
	return n
}

func TestSQLite_RecordIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	batch := []model.EvidenceRecord{record("1", "A", "https://cipc.gov.za/1"), record("2", "B")}
	require.NoError(t, st.Record(ctx, batch))
	require.NoError(t, st.Record(ctx, batch))
	assert.Equal(t, 2, countRecords(t, st))

	var status, changes string
	var confidence int
	require.NoError(t, st.db.QueryRow(`SELECT status, changes, confidence FROM evidence_records WHERE id = ?`, "1").Scan(&status, &changes, &confidence))
	assert.Equal(t, "Candidate", status)
	assert.JSONEq(t, `{"phone":"+27821234567"}`, changes)
	assert.Equal(t, 95, confidence)
}

func TestSQLite_RecordEmptyBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Record(context.Background(), nil))
	assert.Zero(t, countRecords(t, st))
}

func TestSQLite_KnownSources(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Record(ctx, []model.EvidenceRecord{
		record("1", "A", "https://press.example.com/a", "https://cipc.gov.za/1"),
		record("2", "A", "https://cipc.gov.za/1"),
		record("3", "B", "https://other.example.com"),
		record("4", "A"),
	}))

	got, err := st.KnownSources(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cipc.gov.za/1", "https://press.example.com/a"}, got)

	got, err = st.KnownSources(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}
