package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clubmetrics/districtsync/internal/model"
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reconciliation_jobs (
	id            TEXT PRIMARY KEY,
	district_id   TEXT NOT NULL,
	target_period TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'monitoring',
	job           TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_timeline (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES reconciliation_jobs(id),
	entry      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON reconciliation_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_district_period ON reconciliation_jobs(district_id, target_period);
CREATE INDEX IF NOT EXISTS idx_timeline_job_id ON job_timeline(job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ReconciliationJob) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reconciliation_jobs (id, district_id, target_period, status, job, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DistrictID, job.TargetPeriod, string(job.Status), string(jobJSON),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.ReconciliationJob, error) {
	var jobJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT job FROM reconciliation_jobs WHERE id = ?`, jobID,
	).Scan(&jobJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return unmarshalJob(jobJSON)
}

func (s *SQLiteStore) FindActiveJob(ctx context.Context, districtID, targetPeriod string) (*model.ReconciliationJob, error) {
	var jobJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT job FROM reconciliation_jobs
		 WHERE district_id = ? AND target_period = ? AND status NOT IN ('completed', 'failed')
		 ORDER BY created_at DESC LIMIT 1`,
		districtID, targetPeriod,
	).Scan(&jobJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find active job %s/%s", districtID, targetPeriod)
	}
	return unmarshalJob(jobJSON)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ReconciliationJob, error) {
	query := `SELECT job FROM reconciliation_jobs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ActiveOnly {
		query += ` AND status NOT IN ('completed', 'failed')`
	}
	if filter.DistrictID != "" {
		query += ` AND district_id = ?`
		args = append(args, filter.DistrictID)
	}
	if filter.TargetPeriod != "" {
		query += ` AND target_period = ?`
		args = append(args, filter.TargetPeriod)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.ReconciliationJob
	for rows.Next() {
		var jobJSON string
		if err := rows.Scan(&jobJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		job, err := unmarshalJob(jobJSON)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.ReconciliationJob) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reconciliation_jobs SET status = ?, job = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), string(jobJSON), time.Now().UTC(), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) AppendTimeline(ctx context.Context, jobID string, entry model.TimelineEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal timeline entry")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_timeline (id, job_id, entry, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), jobID, string(entryJSON), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append timeline for %s", jobID)
	}
	return nil
}

func (s *SQLiteStore) ListTimeline(ctx context.Context, jobID string) ([]model.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM job_timeline WHERE job_id = ? ORDER BY created_at ASC`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list timeline for %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.TimelineEntry
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan timeline entry")
		}
		var e model.TimelineEntry
		if err := json.Unmarshal([]byte(entryJSON), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal timeline entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func unmarshalJob(jobJSON string) (*model.ReconciliationJob, error) {
	var job model.ReconciliationJob
	if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
		return nil, eris.Wrap(err, "jobstore: unmarshal job")
	}
	return &job, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
