package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/verify-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id             TEXT PRIMARY KEY,
	first_name     TEXT NOT NULL,
	last_name      TEXT NOT NULL,
	middle_name    TEXT NOT NULL DEFAULT '',
	date_of_birth  TEXT NOT NULL DEFAULT '',
	license_number TEXT NOT NULL DEFAULT '',
	license_type   TEXT NOT NULL DEFAULT '',
	license_state  TEXT NOT NULL DEFAULT '',
	npi            TEXT NOT NULL DEFAULT '',
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verdicts (
	id                TEXT PRIMARY KEY,
	subject_id        TEXT NOT NULL,
	verification_type TEXT NOT NULL,
	status            TEXT NOT NULL,
	candidates        TEXT,
	details           TEXT,
	error_message     TEXT NOT NULL DEFAULT '',
	data_source       TEXT NOT NULL DEFAULT '',
	batch_id          TEXT NOT NULL DEFAULT '',
	checked_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_attempts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id    TEXT NOT NULL,
	success      INTEGER NOT NULL,
	unchanged    INTEGER NOT NULL DEFAULT 0,
	record_count INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	duration_ms  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_subject ON verdicts(subject_id, checked_at);
CREATE INDEX IF NOT EXISTS idx_verdicts_batch ON verdicts(batch_id);
CREATE INDEX IF NOT EXISTS idx_refresh_source ON refresh_attempts(source_id, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const subjectColumns = `id, first_name, last_name, middle_name, date_of_birth, license_number, license_type, license_state, npi`

func (s *SQLiteStore) GetSubject(ctx context.Context, id string) (*model.Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id)
	subj, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get subject %s", id)
	}
	return subj, nil
}

func (s *SQLiteStore) PutSubjects(ctx context.Context, subjects []model.Subject) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin put subjects")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO subjects (`+subjectColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name, last_name = excluded.last_name,
			middle_name = excluded.middle_name, date_of_birth = excluded.date_of_birth,
			license_number = excluded.license_number, license_type = excluded.license_type,
			license_state = excluded.license_state, npi = excluded.npi,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare put subject")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, subj := range subjects {
		if _, err := stmt.ExecContext(ctx, append(subjectArgs(subj), now)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: put subject %s", subj.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit put subjects")
	}
	return len(subjects), nil
}

func (s *SQLiteStore) ListSubjects(ctx context.Context, limit int) ([]model.Subject, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subjects")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Subject
	for rows.Next() {
		subj, err := scanSubject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subject")
		}
		out = append(out, *subj)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list subjects iterate")
}

func (s *SQLiteStore) SaveVerdict(ctx context.Context, v model.Verdict) error {
	cands, details, err := marshalVerdict(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, subject_id, verification_type, status, candidates, details, error_message, data_source, batch_id, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		v.ID, v.SubjectID, v.Type, string(v.Status), string(cands), string(details), v.Error, v.DataSource, v.BatchID, v.CheckedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save verdict %s", v.ID)
}

func (s *SQLiteStore) SaveRefreshAttempt(ctx context.Context, a model.RefreshAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_attempts (source_id, success, unchanged, record_count, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.SourceID, a.Success, a.Unchanged, a.RecordCount, a.Error, a.StartedAt.UTC(), durationMillis(a.Duration),
	)
	return eris.Wrapf(err, "sqlite: save refresh attempt %s", a.SourceID)
}

func (s *SQLiteStore) ListVerdicts(ctx context.Context, f VerdictFilter) ([]model.Verdict, error) {
	query := `SELECT id, subject_id, verification_type, status, candidates, details, error_message, data_source, batch_id, checked_at FROM verdicts WHERE 1=1`
	var args []any
	if f.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, f.SubjectID)
	}
	if f.Type != "" {
		query += ` AND verification_type = ?`
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	query += ` ORDER BY checked_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.limit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list verdicts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Verdict
	for rows.Next() {
		var v model.Verdict
		var cands, details sql.NullString
		if err := rows.Scan(&v.ID, &v.SubjectID, &v.Type, &v.Status, &cands, &details, &v.Error, &v.DataSource, &v.BatchID, &v.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verdict")
		}
		if err := unmarshalVerdict(&v, []byte(cands.String), []byte(details.String)); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list verdicts iterate")
}

func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, verification_type, COUNT(*) FROM verdicts GROUP BY status, verification_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary")
	}
	defer rows.Close() //nolint:errcheck

	sum := newSummary()
	for rows.Next() {
		var status, typ string
		var n int
		if err := rows.Scan(&status, &typ, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		sum.add(status, typ, n)
	}
	return sum, eris.Wrap(rows.Err(), "sqlite: summary iterate")
}

func (s *SQLiteStore) LatestRefreshes(ctx context.Context) ([]model.RefreshAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, success, unchanged, record_count, error, started_at, duration_ms
		FROM refresh_attempts r
		WHERE id = (SELECT id FROM refresh_attempts WHERE source_id = r.source_id ORDER BY started_at DESC, id DESC LIMIT 1)
		ORDER BY source_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest refreshes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RefreshAttempt
	for rows.Next() {
		var a model.RefreshAttempt
		var ms int64
		if err := rows.Scan(&a.SourceID, &a.Success, &a.Unchanged, &a.RecordCount, &a.Error, &a.StartedAt, &ms); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan refresh attempt")
		}
		a.Duration = millisDuration(ms)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: latest refreshes iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubject(row scannable) (*model.Subject, error) {
	var s model.Subject
	err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.MiddleName, &s.DateOfBirth,
		&s.LicenseNumber, &s.LicenseType, &s.LicenseState, &s.NPI)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func subjectArgs(s model.Subject) []any {
	return []any{s.ID, s.FirstName, s.LastName, s.MiddleName, s.DateOfBirth,
		s.LicenseNumber, s.LicenseType, s.LicenseState, s.NPI}
}

func marshalVerdict(v model.Verdict) (cands, details []byte, err error) {
	if cands, err = json.Marshal(v.Candidates); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal candidates")
	}
	if details, err = json.Marshal(v.Details); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal details")
	}
	return cands, details, nil
}

func unmarshalVerdict(v *model.Verdict, cands, details []byte) error {
	if len(cands) > 0 && string(cands) != "null" {
		if err := json.Unmarshal(cands, &v.Candidates); err != nil {
			return eris.Wrap(err, "store: unmarshal candidates")
		}
	}
	if len(details) > 0 && string(details) != "null" {
		if err := json.Unmarshal(details, &v.Details); err != nil {
			return eris.Wrap(err, "store: unmarshal details")
		}
	}
	return nil
}
