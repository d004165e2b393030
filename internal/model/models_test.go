package model_test

import (
	"testing"
	"time"

	"jobhunt/internal/model"
)

// ── ParseSource ───────────────────────────────────────────────────────────

func TestParseSource_ValidValues(t *testing.T) {
	for _, s := range []string{"finn", "arbeidsplassen"} {
		got, err := model.ParseSource(s)
		if err != nil {
			t.Errorf("ParseSource(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseSource(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseSource_InvalidValues(t *testing.T) {
	for _, s := range []string{"", "FINN", "linkedin", " finn"} {
		if _, err := model.ParseSource(s); err == nil {
			t.Errorf("ParseSource(%q) expected error, got nil", s)
		}
	}
}

// ── ParseStatus ───────────────────────────────────────────────────────────

func TestParseStatus_ValidValues(t *testing.T) {
	valid := []string{"new", "interested", "applied", "interview", "offer", "rejected", "withdrawn"}
	for _, s := range valid {
		got, err := model.ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStatus_InvalidValues(t *testing.T) {
	for _, s := range []string{"", "APPLIED", "hired", " applied"} {
		if _, err := model.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) expected error, got nil", s)
		}
	}
}

// ── Stale ─────────────────────────────────────────────────────────────────

func TestJobStale(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	threshold := 14 * 24 * time.Hour

	cases := []struct {
		name     string
		lastSeen time.Time
		want     bool
	}{
		{"seen today", now, false},
		{"seen a week ago", now.AddDate(0, 0, -7), false},
		{"exactly at threshold", now.Add(-threshold), false},
		{"just past threshold", now.Add(-threshold - time.Second), true},
		{"seen a month ago", now.AddDate(0, -1, 0), true},
	}
	for _, c := range cases {
		job := model.Job{LastSeenAt: c.lastSeen}
		if got := job.Stale(now, threshold); got != c.want {
			t.Errorf("%s: Stale = %v, want %v", c.name, got, c.want)
		}
	}
}

// ── OverallStatus ─────────────────────────────────────────────────────────

func TestOverallStatus(t *testing.T) {
	ok := model.SourceOutcome{JobsSeen: 3}
	bad := model.SourceOutcome{Err: "connection refused"}

	cases := []struct {
		name     string
		outcomes map[model.Source]model.SourceOutcome
		want     model.RunStatus
	}{
		{"all succeed", map[model.Source]model.SourceOutcome{
			model.SourceFinn: ok, model.SourceArbeidsplassen: ok,
		}, model.RunSuccess},
		{"some fail", map[model.Source]model.SourceOutcome{
			model.SourceFinn: ok, model.SourceArbeidsplassen: bad,
		}, model.RunPartial},
		{"all fail", map[model.Source]model.SourceOutcome{
			model.SourceFinn: bad, model.SourceArbeidsplassen: bad,
		}, model.RunFailed},
		{"no sources", map[model.Source]model.SourceOutcome{}, model.RunFailed},
	}
	for _, c := range cases {
		if got := model.OverallStatus(c.outcomes); got != c.want {
			t.Errorf("%s: OverallStatus = %s, want %s", c.name, got, c.want)
		}
	}
}

// ── SourceOutcome ─────────────────────────────────────────────────────────

func TestSourceOutcomeErrored(t *testing.T) {
	if (model.SourceOutcome{}).Errored() {
		t.Error("zero outcome should not be errored")
	}
	if !(model.SourceOutcome{Err: "boom"}).Errored() {
		t.Error("outcome with error text should be errored")
	}
	// A source that yielded partial results before failing is still errored.
	if !(model.SourceOutcome{JobsSeen: 5, JobsNew: 2, Err: "page 3 timed out"}).Errored() {
		t.Error("partial results do not clear the error")
	}
}
