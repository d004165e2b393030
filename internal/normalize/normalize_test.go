package normalize_test

import (
	"errors"
	"testing"
	"time"

	"jobhunt/internal/model"
	"jobhunt/internal/normalize"
)

var fixedNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newNormalizer() *normalize.Normalizer {
	return &normalize.Normalizer{Now: func() time.Time { return fixedNow }}
}

func rawPosting(fields map[string]string) model.RawPosting {
	return model.RawPosting{Source: model.SourceFinn, Fields: fields}
}

// ── Normalize ─────────────────────────────────────────────────────────────

func TestNormalize_FullPosting(t *testing.T) {
	n := newNormalizer()
	job, err := n.Normalize(rawPosting(map[string]string{
		model.FieldExternalID: "123456",
		model.FieldTitle:      "  Junior   utvikler ",
		model.FieldCompany:    "Acme Systems AS",
		model.FieldLocation:   "Oslo",
		model.FieldURL:        "/job/fulltime/ad.html?finnkode=123456",
		model.FieldPostedAt:   "2026-08-29",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if job.Title != "Junior utvikler" {
		t.Errorf("Title = %q, want whitespace collapsed", job.Title)
	}
	if job.URL != "https://www.finn.no/job/fulltime/ad.html?finnkode=123456" {
		t.Errorf("URL = %q, want resolved against finn base", job.URL)
	}
	if job.PostedAt == nil || !job.PostedAt.Equal(time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PostedAt = %v, want 2026-08-29", job.PostedAt)
	}
	if job.ContentHash == "" || job.IdentityKey == "" {
		t.Error("ContentHash and IdentityKey must be set")
	}
}

func TestNormalize_MissingMandatoryField(t *testing.T) {
	n := newNormalizer()
	cases := []struct {
		missing string
		fields  map[string]string
	}{
		{model.FieldTitle, map[string]string{
			model.FieldCompany: "Acme", model.FieldURL: "https://example.no/1",
		}},
		{model.FieldCompany, map[string]string{
			model.FieldTitle: "Utvikler", model.FieldURL: "https://example.no/1",
		}},
		{model.FieldURL, map[string]string{
			model.FieldTitle: "Utvikler", model.FieldCompany: "Acme",
		}},
	}
	for _, c := range cases {
		_, err := n.Normalize(rawPosting(c.fields))
		var nerr *normalize.NormalizationError
		if !errors.As(err, &nerr) {
			t.Fatalf("Normalize without %s: error = %v, want NormalizationError", c.missing, err)
		}
		if nerr.Field != c.missing {
			t.Errorf("NormalizationError.Field = %q, want %q", nerr.Field, c.missing)
		}
	}
}

func TestNormalize_WhitespaceOnlyTitleIsMissing(t *testing.T) {
	n := newNormalizer()
	_, err := n.Normalize(rawPosting(map[string]string{
		model.FieldTitle:   "   \t\n ",
		model.FieldCompany: "Acme",
		model.FieldURL:     "https://example.no/1",
	}))
	var nerr *normalize.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("error = %v, want NormalizationError", err)
	}
}

func TestNormalize_AbsoluteURLUntouched(t *testing.T) {
	n := newNormalizer()
	job, err := n.Normalize(rawPosting(map[string]string{
		model.FieldTitle:   "Utvikler",
		model.FieldCompany: "Acme",
		model.FieldURL:     "https://www.finn.no/job/fulltime/ad.html?finnkode=9",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if job.URL != "https://www.finn.no/job/fulltime/ad.html?finnkode=9" {
		t.Errorf("URL = %q, want unchanged", job.URL)
	}
}

// ── Determinism ───────────────────────────────────────────────────────────

func TestNormalize_IsDeterministic(t *testing.T) {
	n := newNormalizer()
	fields := map[string]string{
		model.FieldExternalID: "42",
		model.FieldTitle:      "Backend utvikler",
		model.FieldCompany:    "Acme Systems AS",
		model.FieldLocation:   "Bergen",
		model.FieldURL:        "https://example.no/42",
	}

	a, err := n.Normalize(rawPosting(fields))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	b, err := n.Normalize(rawPosting(fields))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.ContentHash != b.ContentHash {
		t.Error("identical input must yield identical content hash")
	}
	if a.IdentityKey != b.IdentityKey {
		t.Error("identical input must yield identical identity key")
	}
}

func TestContentHash_IgnoresTimestamps(t *testing.T) {
	job := model.Job{Title: "Utvikler", Company: "Acme", Location: "Oslo"}
	h1 := normalize.ContentHash(job)

	later := time.Now()
	job.FirstSeenAt = later
	job.LastSeenAt = later
	job.PostedAt = &later
	if h2 := normalize.ContentHash(job); h1 != h2 {
		t.Error("content hash must not depend on timestamps")
	}
}

func TestContentHash_FieldBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide across field boundaries.
	h1 := normalize.ContentHash(model.Job{Title: "ab", Company: "c"})
	h2 := normalize.ContentHash(model.Job{Title: "a", Company: "bc"})
	if h1 == h2 {
		t.Error("content hash must separate fields")
	}
}

// ── Identity keys ─────────────────────────────────────────────────────────

func TestIdentityKey_PrefersExternalID(t *testing.T) {
	a := model.Job{Source: model.SourceFinn, ExternalID: "42", Title: "Utvikler", Company: "Acme"}
	b := model.Job{Source: model.SourceFinn, ExternalID: "42", Title: "Utvikler (senior)", Company: "Acme AS"}
	if normalize.IdentityKey(a) != normalize.IdentityKey(b) {
		t.Error("same (source, external id) must yield the same identity")
	}

	c := model.Job{Source: model.SourceFinn, ExternalID: "43", Title: "Utvikler", Company: "Acme"}
	if normalize.IdentityKey(a) == normalize.IdentityKey(c) {
		t.Error("different external ids must yield different identities")
	}
}

func TestIdentityKey_FallbackIgnoresCosmetics(t *testing.T) {
	a := model.Job{Source: model.SourceFinn, Title: "Senior Utvikler!", Company: "Acme Systems AS", Location: "Oslo"}
	b := model.Job{Source: model.SourceFinn, Title: "senior   utvikler", Company: "acme systems as", Location: " OSLO "}
	if normalize.IdentityKey(a) != normalize.IdentityKey(b) {
		t.Error("cosmetic differences must not change the fallback identity")
	}
}

func TestIdentityKey_SourceScoped(t *testing.T) {
	a := model.Job{Source: model.SourceFinn, ExternalID: "42"}
	b := model.Job{Source: model.SourceArbeidsplassen, ExternalID: "42"}
	if normalize.IdentityKey(a) == normalize.IdentityKey(b) {
		t.Error("identities must never collide across sources")
	}
}

// ── Clean / KeyPart ───────────────────────────────────────────────────────

func TestClean(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  a  b ", "a b"},
		{"a\t\nb", "a b"},
		{"", ""},
	}
	for _, c := range cases {
		if got := normalize.Clean(c.in); got != c.want {
			t.Errorf("Clean(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestKeyPart(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Senior Utvikler!", "senior utvikler"},
		{"C++ utvikler", "c utvikler"},
		{"  Dataanalytiker  ", "dataanalytiker"},
	}
	for _, c := range cases {
		if got := normalize.KeyPart(c.in); got != c.want {
			t.Errorf("KeyPart(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// ── Date parsing ──────────────────────────────────────────────────────────

func TestNormalize_NorwegianRelativeDates(t *testing.T) {
	n := newNormalizer()
	cases := []struct {
		text string
		want time.Time
	}{
		{"i dag", fixedNow},
		{"i går", fixedNow.AddDate(0, 0, -1)},
		{"2 dager siden", fixedNow.AddDate(0, 0, -2)},
		{"3 uker siden", fixedNow.AddDate(0, 0, -21)},
		{"5 timer siden", fixedNow.Add(-5 * time.Hour)},
		{"1 måned siden", fixedNow.AddDate(0, -1, 0)},
	}
	for _, c := range cases {
		job, err := n.Normalize(rawPosting(map[string]string{
			model.FieldTitle:    "Utvikler",
			model.FieldCompany:  "Acme",
			model.FieldURL:      "https://example.no/1",
			model.FieldPostedAt: c.text,
		}))
		if err != nil {
			t.Fatalf("Normalize(%q): %v", c.text, err)
		}
		if job.PostedAt == nil || !job.PostedAt.Equal(c.want) {
			t.Errorf("PostedAt(%q) = %v, want %v", c.text, job.PostedAt, c.want)
		}
	}
}

func TestNormalize_UnparseableDateIsNil(t *testing.T) {
	n := newNormalizer()
	job, err := n.Normalize(rawPosting(map[string]string{
		model.FieldTitle:    "Utvikler",
		model.FieldCompany:  "Acme",
		model.FieldURL:      "https://example.no/1",
		model.FieldPostedAt: "snart",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if job.PostedAt != nil {
		t.Errorf("PostedAt = %v, want nil for unparseable text", job.PostedAt)
	}
}

func TestNormalize_ISODeadline(t *testing.T) {
	n := newNormalizer()
	job, err := n.Normalize(rawPosting(map[string]string{
		model.FieldTitle:    "Utvikler",
		model.FieldCompany:  "Acme",
		model.FieldURL:      "https://example.no/1",
		model.FieldDeadline: "2026-09-15T23:59:59Z",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := time.Date(2026, 9, 15, 23, 59, 59, 0, time.UTC)
	if job.Deadline == nil || !job.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", job.Deadline, want)
	}
}
