// Package scheduler drives ingestion runs: the Runner executes one run
// across all configured sources and keywords, and the cron Scheduler
// triggers it periodically.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobhunt/internal/events"
	"jobhunt/internal/ingest"
	"jobhunt/internal/model"
	"jobhunt/internal/normalize"
	"jobhunt/internal/scraper"
	"jobhunt/internal/store"
)

// Runner executes one ingestion run: fan out over sources, extract,
// normalize, resolve, and finalize a RunRecord. Per-source failures
// are isolated; only the inability to write the RunRecord itself is
// fatal.
type Runner struct {
	store         store.Store
	resolver      *ingest.Resolver
	normalizer    *normalize.Normalizer
	adapters      []scraper.Adapter
	maxConcurrent int
	events        events.Publisher
	now           func() time.Time
}

// NewRunner constructs a Runner. publisher may be nil when no event
// sink is configured.
func NewRunner(st store.Store, adapters []scraper.Adapter, maxConcurrent int, publisher events.Publisher) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		store:         st,
		resolver:      ingest.NewResolver(st),
		normalizer:    normalize.New(),
		adapters:      adapters,
		maxConcurrent: maxConcurrent,
		events:        publisher,
		now:           time.Now,
	}
}

// Run executes one full ingestion run and returns the finalized
// RunRecord. Cancellation between source tasks still finalizes the
// record; sources that never started are recorded as errored.
func (r *Runner) Run(ctx context.Context) (*model.RunRecord, error) {
	run := model.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: r.now().UTC(),
		Outcomes:  make(map[model.Source]model.SourceOutcome),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	keywords, err := r.store.ListKeywords(ctx, true)
	if err != nil {
		// The run row already exists; close it out as failed rather than
		// leaving a dangling open run behind.
		r.abortRun(ctx, run)
		return nil, fmt.Errorf("list active keywords: %w", err)
	}
	if len(keywords) == 0 {
		slog.Warn("no active search keywords, nothing to scrape", "run", run.ID)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		adapters = make(chan scraper.Adapter)
	)
	record := func(src model.Source, outcome model.SourceOutcome) {
		mu.Lock()
		run.Outcomes[src] = outcome
		mu.Unlock()
	}

	for i := 0; i < r.maxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for adapter := range adapters {
				// Cancellation takes effect between source tasks.
				if err := ctx.Err(); err != nil {
					record(adapter.Source(), model.SourceOutcome{Err: err.Error()})
					continue
				}
				record(adapter.Source(), r.runSource(ctx, adapter, keywords))
			}
		}()
	}
	for _, adapter := range r.adapters {
		adapters <- adapter
	}
	close(adapters)
	wg.Wait()

	run.FinishedAt = r.now().UTC()
	run.OverallStatus = model.OverallStatus(run.Outcomes)

	// Finalizing uses a fresh context so a cancelled run still leaves
	// a complete record behind.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.store.FinalizeRun(finalizeCtx, run); err != nil {
		return nil, fmt.Errorf("finalize run record: %w", err)
	}

	r.updateKeywordStats(finalizeCtx, keywords)
	r.publishRunCompleted(finalizeCtx, run)

	slog.Info("run complete",
		"run", run.ID,
		"status", string(run.OverallStatus),
		"sources", len(run.Outcomes))
	return &run, nil
}

// abortRun finalizes a run that could not proceed past creation.
// Best-effort: a failed finalize only logs, the original error is what
// surfaces to the caller.
func (r *Runner) abortRun(ctx context.Context, run model.RunRecord) {
	run.FinishedAt = r.now().UTC()
	run.OverallStatus = model.RunFailed

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.store.FinalizeRun(finalizeCtx, run); err != nil {
		slog.Warn("finalize aborted run failed", "run", run.ID, "err", err)
	}
}

// runSource ingests every keyword for one source. A fetch failure is
// recorded on the outcome but keywords that did succeed still count;
// item-level failures never escalate past a warning.
func (r *Runner) runSource(ctx context.Context, adapter scraper.Adapter, keywords []model.SearchKeyword) model.SourceOutcome {
	var outcome model.SourceOutcome
	src := adapter.Source()

	for _, kw := range keywords {
		postings, err := adapter.Search(ctx, kw)
		if err != nil {
			slog.Warn("source search failed",
				"source", string(src), "keyword", kw.Keyword, "err", err)
			if outcome.Err == "" {
				outcome.Err = err.Error()
			}
		}

		for _, raw := range postings {
			outcome.JobsSeen++

			job, err := r.normalizer.Normalize(raw)
			if err != nil {
				var nerr *normalize.NormalizationError
				if errors.As(err, &nerr) {
					slog.Warn("skipping unnormalizable posting",
						"source", string(src), "keyword", kw.Keyword, "missing", nerr.Field)
					continue
				}
				slog.Warn("normalize failed",
					"source", string(src), "keyword", kw.Keyword, "err", err)
				continue
			}
			job.Keyword = kw.Keyword
			job.SearchLocation = kw.Location

			switch res, err := r.resolver.Resolve(ctx, job, r.now().UTC()); {
			case err != nil:
				slog.Error("resolve failed",
					"source", string(src), "identity", job.IdentityKey, "err", err)
				if outcome.Err == "" {
					outcome.Err = err.Error()
				}
			case res == ingest.OutcomeNew:
				outcome.JobsNew++
				slog.Info("new job", "source", string(src), "title", job.Title, "company", job.Company)
			case res == ingest.OutcomeUpdated:
				outcome.JobsUpdated++
			}
		}
	}
	return outcome
}

// updateKeywordStats refreshes per-keyword discovery statistics after a
// run. Failures only log: statistics are advisory.
func (r *Runner) updateKeywordStats(ctx context.Context, keywords []model.SearchKeyword) {
	now := r.now().UTC()
	for _, kw := range keywords {
		jobs, err := r.store.ListJobs(ctx, store.JobFilter{
			Keyword:        kw.Keyword,
			SearchLocation: kw.Location,
		})
		if err != nil {
			slog.Warn("keyword stats query failed", "keyword", kw.Keyword, "err", err)
			continue
		}
		kw.JobsFound = len(jobs)
		kw.LastSearchedAt = &now
		if err := r.store.SaveKeyword(ctx, kw); err != nil {
			slog.Warn("keyword stats update failed", "keyword", kw.Keyword, "err", err)
		}
	}
}

func (r *Runner) publishRunCompleted(ctx context.Context, run model.RunRecord) {
	if r.events == nil {
		return
	}
	var jobsNew int
	for _, o := range run.Outcomes {
		jobsNew += o.JobsNew
	}
	payload := map[string]any{
		"type":    events.ChannelRunCompleted,
		"runId":   run.ID,
		"status":  string(run.OverallStatus),
		"jobsNew": jobsNew,
	}
	if err := r.events.Publish(ctx, events.ChannelRunCompleted, payload); err != nil {
		slog.Warn("publish run-completed event failed", "run", run.ID, "err", err)
	}
}
