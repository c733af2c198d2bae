package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetSubject(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, first_name, last_name, .* FROM subjects WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "middle_name", "date_of_birth", "license_number", "license_type", "license_state", "npi"}).
			AddRow("s1", "Jane", "Roe", "", "1980-01-02", "ME1", "MD", "FL", ""))

	got, err := s.GetSubject(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Roe", got.LastName)
	assert.Equal(t, "FL", got.LicenseState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubject_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM subjects WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSubject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSubjectNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveVerdict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	checked := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO verdicts .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("v1", "s1", "oig", "passed", []byte("null"), []byte(`{"message":"ok"}`), "", "OIG", "", checked).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveVerdict(context.Background(), model.Verdict{
		ID: "v1", SubjectID: "s1", Type: "oig", Status: model.StatusPassed,
		Details: map[string]any{"message": "ok"}, DataSource: "OIG", CheckedAt: checked,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRefreshAttempt(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO refresh_attempts`).
		WithArgs("oig", true, false, 42, "", started, int64(1500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveRefreshAttempt(context.Background(), model.RefreshAttempt{
		SourceID: "oig", Success: true, RecordCount: 42, StartedAt: started, Duration: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListVerdicts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	checked := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM verdicts WHERE true AND subject_id = \$1 AND status = \$2 ORDER BY checked_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("s1", "failed", 1000, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "subject_id", "verification_type", "status", "candidates", "details", "error_message", "data_source", "batch_id", "checked_at"}).
			AddRow("v1", "s1", "oig", "failed", []byte(`[{"record":{"kind":"individual","first_name":"JOHN","last_name":"DOE"},"score":100,"match_basis":"exact-name"}]`), []byte(`{"message":"found"}`), "", "OIG", "b1", checked))

	got, err := s.ListVerdicts(context.Background(), VerdictFilter{SubjectID: "s1", Status: model.StatusFailed})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusFailed, got[0].Status)
	assert.Equal(t, "found", got[0].Details["message"])
	require.Len(t, got[0].Candidates, 1)
	assert.Equal(t, model.BasisExactName, got[0].Candidates[0].Basis)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, verification_type, COUNT\(\*\) FROM verdicts GROUP BY`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "verification_type", "count"}).
			AddRow("passed", "oig", int64(3)).
			AddRow("failed", "oig", int64(1)).
			AddRow("pending", "sam", int64(2)))

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, sum.TotalChecks)
	assert.Equal(t, 4, sum.ByType["oig"])
	assert.Equal(t, 2, sum.ByStatus["pending"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRefreshes(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT DISTINCT ON \(source_id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"source_id", "success", "unchanged", "record_count", "error", "started_at", "duration_ms"}).
			AddRow("oig", true, false, 10, "", started, int64(2000)))

	got, err := s.LatestRefreshes(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2*time.Second, got[0].Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSubjects(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_subjects"}, subjectUpsert.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "subjects"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := s.PutSubjects(context.Background(), []model.Subject{{ID: "s1", FirstName: "Jane", LastName: "Roe"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS subjects`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
