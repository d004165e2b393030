package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobhunt/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	identity_key  TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	company       TEXT NOT NULL,
	location      TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	keyword       TEXT NOT NULL DEFAULT '',
	search_location TEXT NOT NULL DEFAULT '',
	posted_at     TIMESTAMPTZ,
	deadline      TIMESTAMPTZ,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL,
	content_hash  TEXT NOT NULL,
	change_log    JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE TABLE IF NOT EXISTS applications (
	job_identity_key TEXT PRIMARY KEY REFERENCES jobs (identity_key),
	status           TEXT NOT NULL,
	status_history   JSONB NOT NULL DEFAULT '[]'::jsonb,
	notes            TEXT NOT NULL DEFAULT '',
	applied_at       TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS search_keywords (
	keyword          TEXT NOT NULL,
	location         TEXT NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	jobs_found       INTEGER NOT NULL DEFAULT 0,
	last_searched_at TIMESTAMPTZ,
	PRIMARY KEY (keyword, location)
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ,
	outcomes       JSONB NOT NULL DEFAULT '{}'::jsonb,
	overall_status TEXT NOT NULL DEFAULT ''
);
`

// Postgres is the production Store backed by a pgx connection pool.
// History columns (change_log, status_history) are append-only JSONB
// arrays; the identity_key primary key is the uniqueness constraint
// that serializes concurrent inserts per key.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool and ensures the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

const jobColumns = `identity_key, source, external_id, title, company, location, url,
	description, keyword, search_location, posted_at, deadline, first_seen_at,
	last_seen_at, content_hash, change_log`

func scanJob(row pgx.Row) (model.Job, error) {
	var (
		job       model.Job
		source    string
		changeLog []byte
	)
	err := row.Scan(
		&job.IdentityKey, &source, &job.ExternalID, &job.Title, &job.Company,
		&job.Location, &job.URL, &job.Description, &job.Keyword, &job.SearchLocation,
		&job.PostedAt, &job.Deadline, &job.FirstSeenAt, &job.LastSeenAt,
		&job.ContentHash, &changeLog,
	)
	if err != nil {
		return model.Job{}, err
	}
	job.Source = model.Source(source)
	if err := json.Unmarshal(changeLog, &job.ChangeLog); err != nil {
		return model.Job{}, fmt.Errorf("decode change_log: %w", err)
	}
	return job, nil
}

func (p *Postgres) GetJob(ctx context.Context, identityKey string) (*model.Job, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE identity_key = $1`, identityKey)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownJob
	}
	if err != nil {
		return nil, fmt.Errorf("getJob: %w", err)
	}
	return &job, nil
}

func (p *Postgres) InsertJob(ctx context.Context, job model.Job) error {
	changeLog, err := json.Marshal(job.ChangeLog)
	if err != nil {
		return fmt.Errorf("encode change_log: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb)`,
		job.IdentityKey, string(job.Source), job.ExternalID, job.Title, job.Company,
		job.Location, job.URL, job.Description, job.Keyword, job.SearchLocation,
		job.PostedAt, job.Deadline, job.FirstSeenAt, job.LastSeenAt,
		job.ContentHash, string(changeLog),
	)
	if isUniqueViolation(err) {
		return ErrIdentityConflict
	}
	if err != nil {
		return fmt.Errorf("insertJob: %w", err)
	}
	return nil
}

func (p *Postgres) MarkJobSeen(ctx context.Context, identityKey string, seenAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs SET last_seen_at = GREATEST(last_seen_at, $2) WHERE identity_key = $1`,
		identityKey, seenAt,
	)
	if err != nil {
		return fmt.Errorf("markJobSeen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownJob
	}
	return nil
}

func (p *Postgres) UpdateJobContent(ctx context.Context, job model.Job, note model.ChangeNote) error {
	entry, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode change note: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs
		 SET title = $2, company = $3, location = $4, url = $5, description = $6,
		     posted_at = $7, deadline = $8, last_seen_at = $9, content_hash = $10,
		     change_log = change_log || $11::jsonb
		 WHERE identity_key = $1`,
		job.IdentityKey, job.Title, job.Company, job.Location, job.URL,
		job.Description, job.PostedAt, job.Deadline, job.LastSeenAt,
		job.ContentHash, fmt.Sprintf("[%s]", entry),
	)
	if err != nil {
		return fmt.Errorf("updateJobContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownJob
	}
	return nil
}

func (p *Postgres) ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Source != "" {
		add("source = $%d", string(f.Source))
	}
	if f.Keyword != "" {
		add("keyword = $%d", f.Keyword)
	}
	if f.SearchLocation != "" {
		add("search_location = $%d", f.SearchLocation)
	}
	if !f.FirstSeenSince.IsZero() {
		add("first_seen_at >= $%d", f.FirstSeenSince)
	}
	if !f.FirstSeenUntil.IsZero() {
		add("first_seen_at <= $%d", f.FirstSeenUntil)
	}
	if !f.LastSeenSince.IsZero() {
		add("last_seen_at >= $%d", f.LastSeenSince)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY first_seen_at DESC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listJobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("listJobs scan: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (p *Postgres) NewJobsForRun(ctx context.Context, run model.RunRecord) ([]model.Job, error) {
	return p.ListJobs(ctx, JobFilter{
		FirstSeenSince: run.StartedAt,
		FirstSeenUntil: run.FinishedAt,
	})
}

func (p *Postgres) GetApplication(ctx context.Context, jobIdentityKey string) (*model.Application, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE identity_key = $1)`, jobIdentityKey,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("getApplication: %w", err)
	}
	if !exists {
		return nil, ErrUnknownJob
	}

	var (
		app     model.Application
		status  string
		history []byte
	)
	err = p.pool.QueryRow(ctx,
		`SELECT job_identity_key, status, status_history, notes, applied_at, updated_at
		 FROM applications WHERE job_identity_key = $1`, jobIdentityKey,
	).Scan(&app.JobIdentityKey, &status, &history, &app.Notes, &app.AppliedAt, &app.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoApplication
	}
	if err != nil {
		return nil, fmt.Errorf("getApplication: %w", err)
	}
	app.Status = model.ApplicationStatus(status)
	if err := json.Unmarshal(history, &app.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status_history: %w", err)
	}
	return &app, nil
}

func (p *Postgres) SaveApplication(ctx context.Context, app model.Application) error {
	history, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status_history: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO applications (job_identity_key, status, status_history, notes, applied_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		 ON CONFLICT (job_identity_key) DO UPDATE
		 SET status = EXCLUDED.status,
		     status_history = EXCLUDED.status_history,
		     notes = EXCLUDED.notes,
		     applied_at = EXCLUDED.applied_at,
		     updated_at = EXCLUDED.updated_at`,
		app.JobIdentityKey, string(app.Status), string(history),
		app.Notes, app.AppliedAt, app.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrUnknownJob
	}
	if err != nil {
		return fmt.Errorf("saveApplication: %w", err)
	}
	return nil
}

func (p *Postgres) ListApplications(ctx context.Context) ([]model.Application, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT job_identity_key, status, status_history, notes, applied_at, updated_at
		 FROM applications ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listApplications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		var (
			app     model.Application
			status  string
			history []byte
		)
		if err := rows.Scan(&app.JobIdentityKey, &status, &history,
			&app.Notes, &app.AppliedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("listApplications scan: %w", err)
		}
		app.Status = model.ApplicationStatus(status)
		if err := json.Unmarshal(history, &app.StatusHistory); err != nil {
			return nil, fmt.Errorf("decode status_history: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (p *Postgres) ListKeywords(ctx context.Context, activeOnly bool) ([]model.SearchKeyword, error) {
	query := `SELECT keyword, location, active, jobs_found, last_searched_at
	          FROM search_keywords`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY keyword, location`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listKeywords: %w", err)
	}
	defer rows.Close()

	var kws []model.SearchKeyword
	for rows.Next() {
		var kw model.SearchKeyword
		if err := rows.Scan(&kw.Keyword, &kw.Location, &kw.Active,
			&kw.JobsFound, &kw.LastSearchedAt); err != nil {
			return nil, fmt.Errorf("listKeywords scan: %w", err)
		}
		kws = append(kws, kw)
	}
	return kws, rows.Err()
}

func (p *Postgres) SaveKeyword(ctx context.Context, kw model.SearchKeyword) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO search_keywords (keyword, location, active, jobs_found, last_searched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (keyword, location) DO UPDATE
		 SET active = EXCLUDED.active,
		     jobs_found = EXCLUDED.jobs_found,
		     last_searched_at = EXCLUDED.last_searched_at`,
		kw.Keyword, kw.Location, kw.Active, kw.JobsFound, kw.LastSearchedAt,
	)
	if err != nil {
		return fmt.Errorf("saveKeyword: %w", err)
	}
	return nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.RunRecord) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO runs (id, started_at, outcomes) VALUES ($1, $2, $3::jsonb)`,
		run.ID, run.StartedAt, string(outcomes),
	)
	if isUniqueViolation(err) {
		return ErrIdentityConflict
	}
	if err != nil {
		return fmt.Errorf("createRun: %w", err)
	}
	return nil
}

func (p *Postgres) FinalizeRun(ctx context.Context, run model.RunRecord) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE runs
		 SET finished_at = $2, outcomes = $3::jsonb, overall_status = $4
		 WHERE id = $1 AND finished_at IS NULL`,
		run.ID, run.FinishedAt, string(outcomes), string(run.OverallStatus),
	)
	if err != nil {
		return fmt.Errorf("finalizeRun: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownRun
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	run, err := scanRun(p.pool.QueryRow(ctx,
		`SELECT id, started_at, finished_at, outcomes, overall_status
		 FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownRun
	}
	if err != nil {
		return nil, fmt.Errorf("getRun: %w", err)
	}
	return &run, nil
}

func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, started_at, finished_at, outcomes, overall_status
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listRuns: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listRuns scan: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (model.RunRecord, error) {
	var (
		run      model.RunRecord
		finished *time.Time
		outcomes []byte
		status   string
	)
	if err := row.Scan(&run.ID, &run.StartedAt, &finished, &outcomes, &status); err != nil {
		return model.RunRecord{}, err
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	run.OverallStatus = model.RunStatus(status)
	if err := json.Unmarshal(outcomes, &run.Outcomes); err != nil {
		return model.RunRecord{}, fmt.Errorf("decode outcomes: %w", err)
	}
	return run, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
