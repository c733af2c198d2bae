package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/db"
	"github.com/sells-group/verify-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
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

// NewPostgresWithPool wraps an existing pool. The caller owns its lifetime.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
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
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verdicts (
	id                TEXT PRIMARY KEY,
	subject_id        TEXT NOT NULL,
	verification_type TEXT NOT NULL,
	status            TEXT NOT NULL,
	candidates        JSONB,
	details           JSONB,
	error_message     TEXT NOT NULL DEFAULT '',
	data_source       TEXT NOT NULL DEFAULT '',
	batch_id          TEXT NOT NULL DEFAULT '',
	checked_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_attempts (
	id           BIGSERIAL PRIMARY KEY,
	source_id    TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	unchanged    BOOLEAN NOT NULL DEFAULT false,
	record_count INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_subject ON verdicts(subject_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_verdicts_batch ON verdicts(batch_id);
CREATE INDEX IF NOT EXISTS idx_refresh_source ON refresh_attempts(source_id, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) GetSubject(ctx context.Context, id string) (*model.Subject, error) {
	subj, err := scanSubject(s.pool.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get subject %s", id)
	}
	return subj, nil
}

var subjectUpsert = db.UpsertConfig{
	Table: "subjects",
	Columns: []string{"id", "first_name", "last_name", "middle_name", "date_of_birth",
		"license_number", "license_type", "license_state", "npi", "updated_at"},
	ConflictKeys: []string{"id"},
}

func (s *PostgresStore) PutSubjects(ctx context.Context, subjects []model.Subject) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(subjects))
	for i, subj := range subjects {
		rows[i] = append(subjectArgs(subj), now)
	}
	n, err := db.BulkUpsert(ctx, s.pool, subjectUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: put subjects")
	}
	return int(n), nil
}

func (s *PostgresStore) ListSubjects(ctx context.Context, limit int) ([]model.Subject, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subjects")
	}
	defer rows.Close()

	var out []model.Subject
	for rows.Next() {
		subj, err := scanSubject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan subject")
		}
		out = append(out, *subj)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list subjects iterate")
}

func (s *PostgresStore) SaveVerdict(ctx context.Context, v model.Verdict) error {
	cands, details, err := marshalVerdict(v)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verdicts (id, subject_id, verification_type, status, candidates, details, error_message, data_source, batch_id, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (id) DO NOTHING`,
		v.ID, v.SubjectID, v.Type, string(v.Status), cands, details, v.Error, v.DataSource, v.BatchID, v.CheckedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save verdict %s", v.ID)
}

func (s *PostgresStore) SaveRefreshAttempt(ctx context.Context, a model.RefreshAttempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_attempts (source_id, success, unchanged, record_count, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.SourceID, a.Success, a.Unchanged, a.RecordCount, a.Error, a.StartedAt.UTC(), durationMillis(a.Duration),
	)
	return eris.Wrapf(err, "postgres: save refresh attempt %s", a.SourceID)
}

func (s *PostgresStore) ListVerdicts(ctx context.Context, f VerdictFilter) ([]model.Verdict, error) {
	query := `SELECT id, subject_id, verification_type, status, candidates, details, error_message, data_source, batch_id, checked_at FROM verdicts WHERE true`
	args := []any{}
	argIdx := 1
	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if f.SubjectID != "" {
		add(` AND subject_id = $%d`, f.SubjectID)
	}
	if f.Type != "" {
		add(` AND verification_type = $%d`, f.Type)
	}
	if f.Status != "" {
		add(` AND status = $%d`, string(f.Status))
	}
	if f.BatchID != "" {
		add(` AND batch_id = $%d`, f.BatchID)
	}
	query += ` ORDER BY checked_at DESC`
	add(` LIMIT $%d`, f.limit())
	add(` OFFSET $%d`, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list verdicts")
	}
	defer rows.Close()

	var out []model.Verdict
	for rows.Next() {
		var v model.Verdict
		var status string
		var cands, details []byte
		if err := rows.Scan(&v.ID, &v.SubjectID, &v.Type, &status, &cands, &details, &v.Error, &v.DataSource, &v.BatchID, &v.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verdict")
		}
		v.Status = model.VerdictStatus(status)
		if err := unmarshalVerdict(&v, cands, details); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list verdicts iterate")
}

func (s *PostgresStore) Summary(ctx context.Context) (*Summary, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, verification_type, COUNT(*) FROM verdicts GROUP BY status, verification_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary")
	}
	defer rows.Close()

	sum := newSummary()
	for rows.Next() {
		var status, typ string
		var n int64
		if err := rows.Scan(&status, &typ, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sum.add(status, typ, int(n))
	}
	return sum, eris.Wrap(rows.Err(), "postgres: summary iterate")
}

func (s *PostgresStore) LatestRefreshes(ctx context.Context) ([]model.RefreshAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (source_id) source_id, success, unchanged, record_count, error, started_at, duration_ms
		FROM refresh_attempts
		ORDER BY source_id, started_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest refreshes")
	}
	defer rows.Close()

	var out []model.RefreshAttempt
	for rows.Next() {
		var a model.RefreshAttempt
		var ms int64
		if err := rows.Scan(&a.SourceID, &a.Success, &a.Unchanged, &a.RecordCount, &a.Error, &a.StartedAt, &ms); err != nil {
			return nil, eris.Wrap(err, "postgres: scan refresh attempt")
		}
		a.Duration = millisDuration(ms)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: latest refreshes iterate")
}
