// Package store is the single source of truth for Jobs, Applications,
// SearchKeywords and RunRecords. It owns persistence and uniqueness
// enforcement; every other component reads and writes through the
// Store contract.
package store

import (
	"context"
	"errors"
	"time"

	"jobhunt/internal/model"
)

var (
	// ErrUnknownJob is returned for operations on a job identity that
	// does not exist in the store.
	ErrUnknownJob = errors.New("unknown job identity")

	// ErrIdentityConflict is returned when an insert would violate the
	// identity_key uniqueness constraint. The resolver converts it
	// into the update path; anywhere else it is a data-integrity fault.
	ErrIdentityConflict = errors.New("identity key already exists")

	// ErrNoApplication is returned when a job has no tracking record
	// yet. Applications are created lazily on first user interaction.
	ErrNoApplication = errors.New("no application for job")

	// ErrUnknownRun is returned for operations on a run id that does
	// not exist.
	ErrUnknownRun = errors.New("unknown run")
)

// JobFilter parameterizes job list queries. Zero-valued fields are
// ignored.
type JobFilter struct {
	Source model.Source
	// Keyword and SearchLocation select jobs discovered by one
	// SearchKeyword; keyword text alone is ambiguous when the same
	// text is searched in several locations.
	Keyword        string
	SearchLocation string
	FirstSeenSince time.Time
	FirstSeenUntil time.Time
	LastSeenSince  time.Time
}

// Store is the durable record of the pipeline. Implementations must
// serialize concurrent inserts per identity key: of two concurrent
// inserts for the same key exactly one succeeds and the other gets
// ErrIdentityConflict.
type Store interface {
	// Jobs. Jobs are never deleted; staleness is derived from
	// last_seen_at by callers.
	GetJob(ctx context.Context, identityKey string) (*model.Job, error)
	InsertJob(ctx context.Context, job model.Job) error
	MarkJobSeen(ctx context.Context, identityKey string, seenAt time.Time) error
	UpdateJobContent(ctx context.Context, job model.Job, note model.ChangeNote) error
	ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error)
	// NewJobsForRun is the queryable view a notification layer builds
	// its digest from: jobs first seen within the run's window.
	NewJobsForRun(ctx context.Context, run model.RunRecord) ([]model.Job, error)

	// Applications. SaveApplication upserts; history arrays are only
	// ever appended to, never rewritten shorter.
	GetApplication(ctx context.Context, jobIdentityKey string) (*model.Application, error)
	SaveApplication(ctx context.Context, app model.Application) error
	ListApplications(ctx context.Context) ([]model.Application, error)

	// Search keywords.
	ListKeywords(ctx context.Context, activeOnly bool) ([]model.SearchKeyword, error)
	SaveKeyword(ctx context.Context, kw model.SearchKeyword) error

	// Run records. A run is created at start and finalized exactly
	// once at the end; finalized runs are immutable.
	CreateRun(ctx context.Context, run model.RunRecord) error
	FinalizeRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (*model.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}
