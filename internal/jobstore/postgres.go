package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clubmetrics/districtsync/internal/db"
	"github.com/clubmetrics/districtsync/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of the reconciliation loop.
var preparedStatements = map[string]string{
	"insert_job":      `INSERT INTO reconciliation_jobs (id, district_id, target_period, status, job, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_job":      `UPDATE reconciliation_jobs SET status = $1, job = $2, updated_at = $3 WHERE id = $4`,
	"get_job":         `SELECT job FROM reconciliation_jobs WHERE id = $1`,
	"insert_timeline": `INSERT INTO job_timeline (id, job_id, entry, created_at) VALUES ($1, $2, $3, $4)`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reconciliation_jobs (
	id            TEXT PRIMARY KEY,
	district_id   TEXT NOT NULL,
	target_period TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'monitoring',
	job           JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_timeline (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id     TEXT NOT NULL REFERENCES reconciliation_jobs(id),
	entry      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON reconciliation_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_district_period ON reconciliation_jobs(district_id, target_period);
CREATE INDEX IF NOT EXISTS idx_timeline_job_id ON job_timeline(job_id);
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

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ReconciliationJob) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reconciliation_jobs (id, district_id, target_period, status, job, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.DistrictID, job.TargetPeriod, string(job.Status), jobJSON,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.ReconciliationJob, error) {
	var jobJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT job FROM reconciliation_jobs WHERE id = $1`, jobID,
	).Scan(&jobJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return unmarshalJob(string(jobJSON))
}

func (s *PostgresStore) FindActiveJob(ctx context.Context, districtID, targetPeriod string) (*model.ReconciliationJob, error) {
	var jobJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT job FROM reconciliation_jobs
		 WHERE district_id = $1 AND target_period = $2 AND status NOT IN ('completed', 'failed')
		 ORDER BY created_at DESC LIMIT 1`,
		districtID, targetPeriod,
	).Scan(&jobJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find active job %s/%s", districtID, targetPeriod)
	}
	return unmarshalJob(string(jobJSON))
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ReconciliationJob, error) {
	query := `SELECT job FROM reconciliation_jobs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.ActiveOnly {
		query += ` AND status NOT IN ('completed', 'failed')`
	}
	if filter.DistrictID != "" {
		query += ` AND district_id = ` + arg(filter.DistrictID)
	}
	if filter.TargetPeriod != "" {
		query += ` AND target_period = ` + arg(filter.TargetPeriod)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ReconciliationJob
	for rows.Next() {
		var jobJSON []byte
		if err := rows.Scan(&jobJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		job, err := unmarshalJob(string(jobJSON))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.ReconciliationJob) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE reconciliation_jobs SET status = $1, job = $2, updated_at = $3 WHERE id = $4`,
		string(job.Status), jobJSON, time.Now().UTC(), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s not found", job.ID)
	}
	return nil
}

func (s *PostgresStore) AppendTimeline(ctx context.Context, jobID string, entry model.TimelineEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal timeline entry")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_timeline (id, job_id, entry, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), jobID, entryJSON, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append timeline for %s", jobID)
	}
	return nil
}

func (s *PostgresStore) ListTimeline(ctx context.Context, jobID string) ([]model.TimelineEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry FROM job_timeline WHERE job_id = $1 ORDER BY created_at ASC`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list timeline for %s", jobID)
	}
	defer rows.Close()

	var entries []model.TimelineEntry
	for rows.Next() {
		var entryJSON []byte
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan timeline entry")
		}
		var e model.TimelineEntry
		if err := json.Unmarshal(entryJSON, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal timeline entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
