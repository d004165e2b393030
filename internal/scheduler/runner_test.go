package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"jobhunt/internal/events"
	"jobhunt/internal/model"
	"jobhunt/internal/scheduler"
	"jobhunt/internal/scraper"
	"jobhunt/internal/store"
)

// fakeAdapter serves canned postings for any keyword.
type fakeAdapter struct {
	src      model.Source
	postings []model.RawPosting
	err      error
}

func (f *fakeAdapter) Source() model.Source { return f.src }

func (f *fakeAdapter) Search(ctx context.Context, kw model.SearchKeyword) ([]model.RawPosting, error) {
	return f.postings, f.err
}

// fakePublisher records published events.
type fakePublisher struct {
	channels []string
	payloads []any
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, payload any) error {
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, payload)
	return nil
}

func posting(src model.Source, externalID, title string) model.RawPosting {
	return model.RawPosting{
		Source: src,
		Fields: map[string]string{
			model.FieldExternalID: externalID,
			model.FieldTitle:      title,
			model.FieldCompany:    "Acme Systems AS",
			model.FieldLocation:   "Oslo",
			model.FieldURL:        fmt.Sprintf("https://example.no/%s", externalID),
		},
	}
}

func seedKeyword(t *testing.T, st store.Store) {
	t.Helper()
	kw := model.SearchKeyword{Keyword: "utvikler", Location: "Oslo", Active: true}
	if err := st.SaveKeyword(context.Background(), kw); err != nil {
		t.Fatalf("SaveKeyword: %v", err)
	}
}

// ── Run — happy path ──────────────────────────────────────────────────────

func TestRun_AllSourcesSucceed(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
		posting(model.SourceFinn, "2", "Backend utvikler"),
	}}
	nav := &fakeAdapter{src: model.SourceArbeidsplassen, postings: []model.RawPosting{
		posting(model.SourceArbeidsplassen, "3", "Dataanalytiker"),
	}}

	runner := scheduler.NewRunner(st, []scraper.Adapter{finn, nav}, 2, nil)
	run, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.OverallStatus != model.RunSuccess {
		t.Errorf("OverallStatus = %s, want success", run.OverallStatus)
	}
	if got := run.Outcomes[model.SourceFinn]; got.JobsSeen != 2 || got.JobsNew != 2 {
		t.Errorf("finn outcome = %+v, want 2 seen, 2 new", got)
	}
	if got := run.Outcomes[model.SourceArbeidsplassen]; got.JobsSeen != 1 || got.JobsNew != 1 {
		t.Errorf("arbeidsplassen outcome = %+v, want 1 seen, 1 new", got)
	}

	jobs, _ := st.ListJobs(context.Background(), store.JobFilter{})
	if len(jobs) != 3 {
		t.Errorf("stored job count = %d, want 3", len(jobs))
	}
}

// ── Run — per-source failure isolation ────────────────────────────────────

func TestRun_SourceFailureIsIsolated(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	healthy := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
	}}
	broken := &fakeAdapter{src: model.SourceArbeidsplassen, err: errors.New("connection refused")}

	runner := scheduler.NewRunner(st, []scraper.Adapter{healthy, broken}, 2, nil)
	run, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.OverallStatus != model.RunPartial {
		t.Errorf("OverallStatus = %s, want partial", run.OverallStatus)
	}
	if got := run.Outcomes[model.SourceArbeidsplassen]; !got.Errored() {
		t.Error("failing source outcome should carry an error")
	}
	if got := run.Outcomes[model.SourceFinn]; got.Errored() || got.JobsNew != 1 {
		t.Errorf("healthy source outcome = %+v, want 1 new and no error", got)
	}

	jobs, _ := st.ListJobs(context.Background(), store.JobFilter{})
	if len(jobs) != 1 {
		t.Errorf("stored job count = %d, healthy source results must persist", len(jobs))
	}
}

func TestRun_AllSourcesFail(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	a := &fakeAdapter{src: model.SourceFinn, err: errors.New("timeout")}
	b := &fakeAdapter{src: model.SourceArbeidsplassen, err: errors.New("timeout")}

	runner := scheduler.NewRunner(st, []scraper.Adapter{a, b}, 2, nil)
	run, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.OverallStatus != model.RunFailed {
		t.Errorf("OverallStatus = %s, want failed", run.OverallStatus)
	}
}

// ── Run — item-level failures ─────────────────────────────────────────────

func TestRun_SkipsUnnormalizablePostings(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	missingTitle := model.RawPosting{
		Source: model.SourceFinn,
		Fields: map[string]string{
			model.FieldCompany: "Acme Systems AS",
			model.FieldURL:     "https://example.no/broken",
		},
	}
	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
		missingTitle,
		posting(model.SourceFinn, "2", "Backend utvikler"),
	}}

	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)
	run, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := run.Outcomes[model.SourceFinn]
	if got.JobsSeen != 3 {
		t.Errorf("JobsSeen = %d, want 3 (skipped items still count as seen)", got.JobsSeen)
	}
	if got.JobsNew != 2 {
		t.Errorf("JobsNew = %d, want 2", got.JobsNew)
	}
	if got.Errored() {
		t.Error("item-level skip must not mark the source as errored")
	}
	if run.OverallStatus != model.RunSuccess {
		t.Errorf("OverallStatus = %s, want success", run.OverallStatus)
	}
}

// ── Run — idempotence ─────────────────────────────────────────────────────

func TestRun_RerunIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
		posting(model.SourceFinn, "2", "Backend utvikler"),
	}}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)

	first, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if got := first.Outcomes[model.SourceFinn]; got.JobsNew != 2 {
		t.Errorf("first run JobsNew = %d, want 2", got.JobsNew)
	}
	if got := second.Outcomes[model.SourceFinn]; got.JobsNew != 0 || got.JobsUpdated != 0 {
		t.Errorf("second run outcome = %+v, want nothing new or updated", got)
	}

	jobs, _ := st.ListJobs(context.Background(), store.JobFilter{})
	if len(jobs) != 2 {
		t.Errorf("stored job count = %d after rerun, want 2", len(jobs))
	}
	runs, _ := st.ListRuns(context.Background(), 0)
	if len(runs) != 2 {
		t.Errorf("run record count = %d, want 2", len(runs))
	}
}

// ── Run — cancellation ────────────────────────────────────────────────────

func TestRun_CancelledContextStillFinalizes(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
	}}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.OverallStatus != model.RunFailed {
		t.Errorf("OverallStatus = %s, want failed (no source ran)", run.OverallStatus)
	}
	if !run.Outcomes[model.SourceFinn].Errored() {
		t.Error("cancelled source should be recorded as errored")
	}

	stored, err := st.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.FinishedAt.IsZero() {
		t.Error("cancelled run must still be finalized with a finish time")
	}
}

// failingKeywordStore breaks the keyword query while the rest of the
// store keeps working.
type failingKeywordStore struct {
	*store.Memory
}

func (s *failingKeywordStore) ListKeywords(ctx context.Context, activeOnly bool) ([]model.SearchKeyword, error) {
	return nil, errors.New("relation search_keywords is gone")
}

func TestRun_KeywordQueryFailureClosesRun(t *testing.T) {
	st := &failingKeywordStore{Memory: store.NewMemory()}

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
	}}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("Run with broken keyword query expected error, got nil")
	}

	runs, err := st.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("run record count = %d, want 1", len(runs))
	}
	if runs[0].FinishedAt.IsZero() {
		t.Error("failed run must not be left open without a finish time")
	}
	if runs[0].OverallStatus != model.RunFailed {
		t.Errorf("OverallStatus = %s, want failed", runs[0].OverallStatus)
	}
}

// ── Run — keyword stats and events ────────────────────────────────────────

func TestRun_UpdatesKeywordStats(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
		posting(model.SourceFinn, "2", "Backend utvikler"),
	}}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	kws, _ := st.ListKeywords(context.Background(), false)
	if len(kws) != 1 {
		t.Fatalf("keyword count = %d, want 1", len(kws))
	}
	if kws[0].JobsFound != 2 {
		t.Errorf("JobsFound = %d, want 2", kws[0].JobsFound)
	}
	if kws[0].LastSearchedAt == nil {
		t.Error("LastSearchedAt should be set after a run")
	}
}

func TestRun_KeywordStatsScopedByLocation(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	for _, loc := range []string{"Oslo", "Bergen"} {
		kw := model.SearchKeyword{Keyword: "utvikler", Location: loc, Active: true}
		if err := st.SaveKeyword(ctx, kw); err != nil {
			t.Fatalf("SaveKeyword: %v", err)
		}
	}

	// The adapter yields the same postings for both keywords; the jobs
	// stay attached to the search that discovered them first.
	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
		posting(model.SourceFinn, "2", "Backend utvikler"),
	}}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)
	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	kws, _ := st.ListKeywords(ctx, false)
	found := make(map[string]int)
	for _, kw := range kws {
		found[kw.Location] = kw.JobsFound
	}
	// Keywords are searched in (keyword, location) order, so the Bergen
	// search runs first and claims both discoveries.
	if found["Bergen"] != 2 || found["Oslo"] != 0 {
		t.Errorf("per-location JobsFound = %v, want Bergen 2, Oslo 0", found)
	}
}

func TestRun_PublishesCompletionEvent(t *testing.T) {
	st := store.NewMemory()
	seedKeyword(t, st)

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
	}}
	pub := &fakePublisher{}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, pub)
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(pub.channels) != 1 || pub.channels[0] != events.ChannelRunCompleted {
		t.Errorf("published channels = %v, want one %s", pub.channels, events.ChannelRunCompleted)
	}
}

// ── Run — no active keywords ──────────────────────────────────────────────

func TestRun_NoActiveKeywords(t *testing.T) {
	st := store.NewMemory()
	// One keyword exists but is paused.
	kw := model.SearchKeyword{Keyword: "utvikler", Location: "Oslo", Active: false}
	if err := st.SaveKeyword(context.Background(), kw); err != nil {
		t.Fatalf("SaveKeyword: %v", err)
	}

	finn := &fakeAdapter{src: model.SourceFinn, postings: []model.RawPosting{
		posting(model.SourceFinn, "1", "Junior utvikler"),
	}}
	runner := scheduler.NewRunner(st, []scraper.Adapter{finn}, 1, nil)
	run, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := run.Outcomes[model.SourceFinn]; got.JobsSeen != 0 {
		t.Errorf("JobsSeen = %d with no active keywords, want 0", got.JobsSeen)
	}
	jobs, _ := st.ListJobs(context.Background(), store.JobFilter{})
	if len(jobs) != 0 {
		t.Errorf("stored job count = %d, want 0", len(jobs))
	}
}
