// Package analytics derives read-only statistics from the store:
// keyword yield, top companies, source distribution and the
// application funnel. It mutates nothing.
package analytics

import (
	"context"
	"sort"
	"time"

	"jobhunt/internal/model"
	"jobhunt/internal/store"
)

// Aggregator computes statistics over the store. StaleAfter controls
// which jobs count as stale when a caller filters them out; staleness
// is always derived from last_seen_at, never stored.
type Aggregator struct {
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time
}

// New constructs an Aggregator.
func New(st store.Store, staleAfter time.Duration) *Aggregator {
	return &Aggregator{store: st, staleAfter: staleAfter, now: time.Now}
}

// KeywordYield is the number of jobs a keyword produced in a window.
type KeywordYield struct {
	Keyword   string `json:"keyword"`
	Location  string `json:"location"`
	Jobs      int    `json:"jobs"`
	Companies int    `json:"companies"` // distinct companies among those jobs
}

// CompanyCount is one entry of the top-companies ranking.
type CompanyCount struct {
	Company string `json:"company"`
	Jobs    int    `json:"jobs"`
}

// Funnel holds application counts per status and conversion rates
// against the total number of tracked jobs.
type Funnel struct {
	Total      int                               `json:"total"`
	ByStatus   map[model.ApplicationStatus]int   `json:"byStatus"`
	Conversion map[model.ApplicationStatus]float64 `json:"conversion"`
}

// KeywordYield computes per-keyword job yield for jobs first seen
// within the window (zero window means all time). Stale jobs count
// unless includeStale is false.
func (a *Aggregator) KeywordYield(ctx context.Context, window time.Duration, includeStale bool) ([]KeywordYield, error) {
	keywords, err := a.store.ListKeywords(ctx, false)
	if err != nil {
		return nil, err
	}

	var since time.Time
	if window > 0 {
		since = a.now().Add(-window)
	}

	yields := make([]KeywordYield, 0, len(keywords))
	for _, kw := range keywords {
		jobs, err := a.store.ListJobs(ctx, store.JobFilter{
			Keyword:        kw.Keyword,
			SearchLocation: kw.Location,
			FirstSeenSince: since,
		})
		if err != nil {
			return nil, err
		}
		jobs = a.filterStale(jobs, includeStale)

		companies := make(map[string]struct{})
		for _, job := range jobs {
			if job.Company != "" {
				companies[job.Company] = struct{}{}
			}
		}
		yields = append(yields, KeywordYield{
			Keyword:   kw.Keyword,
			Location:  kw.Location,
			Jobs:      len(jobs),
			Companies: len(companies),
		})
	}

	sort.Slice(yields, func(i, j int) bool { return yields[i].Jobs > yields[j].Jobs })
	return yields, nil
}

// TopCompanies returns the top-n companies by posting count.
func (a *Aggregator) TopCompanies(ctx context.Context, n int, includeStale bool) ([]CompanyCount, error) {
	jobs, err := a.store.ListJobs(ctx, store.JobFilter{})
	if err != nil {
		return nil, err
	}
	jobs = a.filterStale(jobs, includeStale)

	counts := make(map[string]int)
	for _, job := range jobs {
		if job.Company != "" {
			counts[job.Company]++
		}
	}

	ranking := make([]CompanyCount, 0, len(counts))
	for company, c := range counts {
		ranking = append(ranking, CompanyCount{Company: company, Jobs: c})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Jobs != ranking[j].Jobs {
			return ranking[i].Jobs > ranking[j].Jobs
		}
		return ranking[i].Company < ranking[j].Company
	})
	if n > 0 && len(ranking) > n {
		ranking = ranking[:n]
	}
	return ranking, nil
}

// JobsBySource returns posting counts per source.
func (a *Aggregator) JobsBySource(ctx context.Context, includeStale bool) (map[model.Source]int, error) {
	jobs, err := a.store.ListJobs(ctx, store.JobFilter{})
	if err != nil {
		return nil, err
	}
	jobs = a.filterStale(jobs, includeStale)

	counts := make(map[model.Source]int)
	for _, job := range jobs {
		counts[job.Source]++
	}
	return counts, nil
}

// Funnel computes the application pipeline distribution and per-status
// conversion rates.
func (a *Aggregator) Funnel(ctx context.Context) (Funnel, error) {
	apps, err := a.store.ListApplications(ctx)
	if err != nil {
		return Funnel{}, err
	}

	f := Funnel{
		Total:      len(apps),
		ByStatus:   make(map[model.ApplicationStatus]int),
		Conversion: make(map[model.ApplicationStatus]float64),
	}
	for _, app := range apps {
		f.ByStatus[app.Status]++
	}
	if f.Total > 0 {
		for status, count := range f.ByStatus {
			f.Conversion[status] = float64(count) / float64(f.Total)
		}
	}
	return f, nil
}

func (a *Aggregator) filterStale(jobs []model.Job, includeStale bool) []model.Job {
	if includeStale {
		return jobs
	}
	now := a.now()
	fresh := jobs[:0]
	for _, job := range jobs {
		if !job.Stale(now, a.staleAfter) {
			fresh = append(fresh, job)
		}
	}
	return fresh
}
