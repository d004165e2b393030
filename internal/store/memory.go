package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobhunt/internal/model"
)

// Memory is a map-backed Store. It backs tests and lets the pipeline
// run without external services; production deployments use Postgres.
type Memory struct {
	mu       sync.RWMutex
	jobs     map[string]model.Job
	apps     map[string]model.Application
	keywords map[string]model.SearchKeyword
	runs     map[string]model.RunRecord
	runOrder []string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]model.Job),
		apps:     make(map[string]model.Application),
		keywords: make(map[string]model.SearchKeyword),
		runs:     make(map[string]model.RunRecord),
	}
}

func keywordID(kw model.SearchKeyword) string { return kw.Keyword + "\x1f" + kw.Location }

func (m *Memory) GetJob(ctx context.Context, identityKey string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[identityKey]
	if !ok {
		return nil, ErrUnknownJob
	}
	return &job, nil
}

func (m *Memory) InsertJob(ctx context.Context, job model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.IdentityKey]; exists {
		return ErrIdentityConflict
	}
	m.jobs[job.IdentityKey] = job
	return nil
}

func (m *Memory) MarkJobSeen(ctx context.Context, identityKey string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[identityKey]
	if !ok {
		return ErrUnknownJob
	}
	if seenAt.After(job.LastSeenAt) {
		job.LastSeenAt = seenAt
	}
	m.jobs[identityKey] = job
	return nil
}

func (m *Memory) UpdateJobContent(ctx context.Context, job model.Job, note model.ChangeNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.IdentityKey]
	if !ok {
		return ErrUnknownJob
	}
	job.FirstSeenAt = stored.FirstSeenAt
	job.ChangeLog = append(stored.ChangeLog, note)
	m.jobs[job.IdentityKey] = job
	return nil
}

func (m *Memory) ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var jobs []model.Job
	for _, job := range m.jobs {
		if matchesFilter(job, f) {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].FirstSeenAt.After(jobs[j].FirstSeenAt)
	})
	return jobs, nil
}

func matchesFilter(job model.Job, f JobFilter) bool {
	if f.Source != "" && job.Source != f.Source {
		return false
	}
	if f.Keyword != "" && job.Keyword != f.Keyword {
		return false
	}
	if f.SearchLocation != "" && job.SearchLocation != f.SearchLocation {
		return false
	}
	if !f.FirstSeenSince.IsZero() && job.FirstSeenAt.Before(f.FirstSeenSince) {
		return false
	}
	if !f.FirstSeenUntil.IsZero() && job.FirstSeenAt.After(f.FirstSeenUntil) {
		return false
	}
	if !f.LastSeenSince.IsZero() && job.LastSeenAt.Before(f.LastSeenSince) {
		return false
	}
	return true
}

func (m *Memory) NewJobsForRun(ctx context.Context, run model.RunRecord) ([]model.Job, error) {
	return m.ListJobs(ctx, JobFilter{
		FirstSeenSince: run.StartedAt,
		FirstSeenUntil: run.FinishedAt,
	})
}

func (m *Memory) GetApplication(ctx context.Context, jobIdentityKey string) (*model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[jobIdentityKey]; !ok {
		return nil, ErrUnknownJob
	}
	app, ok := m.apps[jobIdentityKey]
	if !ok {
		return nil, ErrNoApplication
	}
	return &app, nil
}

func (m *Memory) SaveApplication(ctx context.Context, app model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[app.JobIdentityKey]; !ok {
		return ErrUnknownJob
	}
	m.apps[app.JobIdentityKey] = app
	return nil
}

func (m *Memory) ListApplications(ctx context.Context) ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	apps := make([]model.Application, 0, len(m.apps))
	for _, app := range m.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].UpdatedAt.After(apps[j].UpdatedAt)
	})
	return apps, nil
}

func (m *Memory) ListKeywords(ctx context.Context, activeOnly bool) ([]model.SearchKeyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var kws []model.SearchKeyword
	for _, kw := range m.keywords {
		if activeOnly && !kw.Active {
			continue
		}
		kws = append(kws, kw)
	}
	sort.Slice(kws, func(i, j int) bool {
		return keywordID(kws[i]) < keywordID(kws[j])
	})
	return kws, nil
}

func (m *Memory) SaveKeyword(ctx context.Context, kw model.SearchKeyword) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keywords[keywordID(kw)] = kw
	return nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; exists {
		return ErrIdentityConflict
	}
	m.runs[run.ID] = run
	m.runOrder = append(m.runOrder, run.ID)
	return nil
}

func (m *Memory) FinalizeRun(ctx context.Context, run model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; !exists {
		return ErrUnknownRun
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrUnknownRun
	}
	return &run, nil
}

func (m *Memory) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []model.RunRecord
	for i := len(m.runOrder) - 1; i >= 0 && (limit <= 0 || len(runs) < limit); i-- {
		runs = append(runs, m.runs[m.runOrder[i]])
	}
	return runs, nil
}
