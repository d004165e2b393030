// Package model defines the durable record types of the ingestion
// pipeline: Job, SearchKeyword, Application and RunRecord, plus the
// RawPosting shape produced by source adapters.
package model

import (
	"fmt"
	"time"
)

// Source identifies an external job site.
type Source string

const (
	SourceFinn           Source = "finn"
	SourceArbeidsplassen Source = "arbeidsplassen"
)

// ParseSource converts a raw string to a Source, returning an error for
// unknown values.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	switch src {
	case SourceFinn, SourceArbeidsplassen:
		return src, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Well-known RawPosting field keys. Adapters fill whatever their site
// exposes; the normalizer reads only these keys.
const (
	FieldExternalID  = "external_id"
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldLocation    = "location"
	FieldURL         = "url"
	FieldDescription = "description"
	FieldPostedAt    = "posted_at"
	FieldDeadline    = "deadline"
)

// RawPosting is the unvalidated, source-native extraction of one job
// listing before normalization. Fields is a free-form bag keyed by the
// Field* constants.
type RawPosting struct {
	Source Source
	Fields map[string]string
}

// ChangeNote records one content-hash transition of a stored Job, so
// downstream consumers can distinguish an edited posting from a mere
// re-observation.
type ChangeNote struct {
	OldHash   string    `json:"oldHash"`
	NewHash   string    `json:"newHash"`
	ChangedAt time.Time `json:"changedAt"`
}

// Job is the canonical, deduplicated posting record.
type Job struct {
	IdentityKey string       `json:"identityKey"`
	Source      Source       `json:"source"`
	ExternalID  string       `json:"externalId,omitempty"`
	Title       string       `json:"title"`
	Company     string       `json:"company"`
	Location    string       `json:"location"`
	URL         string       `json:"url"`
	Description string       `json:"description,omitempty"`
	// Keyword and SearchLocation identify the search that first
	// discovered the job; together they reference a SearchKeyword.
	Keyword        string       `json:"keyword,omitempty"`
	SearchLocation string       `json:"searchLocation,omitempty"`
	PostedAt       *time.Time   `json:"postedAt,omitempty"`
	Deadline       *time.Time   `json:"deadline,omitempty"`
	FirstSeenAt    time.Time    `json:"firstSeenAt"`
	LastSeenAt     time.Time    `json:"lastSeenAt"`
	ContentHash    string       `json:"contentHash"`
	ChangeLog      []ChangeNote `json:"changeLog,omitempty"`
}

// Stale reports whether the job has not been observed for longer than
// threshold. Staleness is derived, never stored: a posting that
// disappears from its site keeps its row and its Application linkage.
func (j *Job) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(j.LastSeenAt) > threshold
}

// SearchKeyword is a configured query term scoped to a location.
// Created and edited by configuration; read-only to the pipeline except
// for the post-run statistics.
type SearchKeyword struct {
	Keyword        string     `json:"keyword"`
	Location       string     `json:"location"`
	Active         bool       `json:"active"`
	JobsFound      int        `json:"jobsFound"`
	LastSearchedAt *time.Time `json:"lastSearchedAt,omitempty"`
}

// ApplicationStatus is the user's pipeline status for a tracked Job.
type ApplicationStatus string

const (
	StatusNew        ApplicationStatus = "new"
	StatusInterested ApplicationStatus = "interested"
	StatusApplied    ApplicationStatus = "applied"
	StatusInterview  ApplicationStatus = "interview"
	StatusOffer      ApplicationStatus = "offer"
	StatusRejected   ApplicationStatus = "rejected"
	StatusWithdrawn  ApplicationStatus = "withdrawn"
)

// ParseStatus converts a raw string to an ApplicationStatus, returning
// an error for unknown values.
func ParseStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(s)
	switch st {
	case StatusNew, StatusInterested, StatusApplied, StatusInterview,
		StatusOffer, StatusRejected, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// StatusChange is one append-only status_history entry.
type StatusChange struct {
	Status ApplicationStatus `json:"status"`
	At     time.Time         `json:"at"`
	Note   string            `json:"note,omitempty"`
}

// Application is the user-authored tracking record, at most one per Job.
// It references its Job by identity key only and never controls the Job
// lifecycle.
type Application struct {
	JobIdentityKey string            `json:"jobIdentityKey"`
	Status         ApplicationStatus `json:"status"`
	StatusHistory  []StatusChange    `json:"statusHistory"`
	Notes          string            `json:"notes,omitempty"`
	AppliedAt      *time.Time        `json:"appliedAt,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// RunStatus is the overall outcome of one scheduler run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// SourceOutcome summarises one source's contribution to a run.
type SourceOutcome struct {
	JobsSeen    int    `json:"jobsSeen"`
	JobsNew     int    `json:"jobsNew"`
	JobsUpdated int    `json:"jobsUpdated"`
	Err         string `json:"error,omitempty"`
}

// Errored reports whether the source recorded an error during the run.
func (o SourceOutcome) Errored() bool { return o.Err != "" }

// RunRecord is the immutable record of one scheduler invocation.
type RunRecord struct {
	ID            string                   `json:"id"`
	StartedAt     time.Time                `json:"startedAt"`
	FinishedAt    time.Time                `json:"finishedAt"`
	Outcomes      map[Source]SourceOutcome `json:"outcomes"`
	OverallStatus RunStatus                `json:"overallStatus"`
}

// OverallStatus derives the run status from per-source outcomes:
// success when every source succeeded, partial when some errored, and
// failed when none succeeded.
func OverallStatus(outcomes map[Source]SourceOutcome) RunStatus {
	var ok, errored int
	for _, o := range outcomes {
		if o.Errored() {
			errored++
		} else {
			ok++
		}
	}
	switch {
	case ok > 0 && errored == 0:
		return RunSuccess
	case ok > 0:
		return RunPartial
	default:
		return RunFailed
	}
}
