// Package normalize maps source-native raw postings into the canonical
// Job schema. Normalization is deterministic: identical raw input
// always yields the same content hash and identity key, which is what
// makes re-ingestion idempotent.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"jobhunt/internal/model"
)

// sourceBaseURLs resolves relative listing URLs to absolute ones.
var sourceBaseURLs = map[model.Source]string{
	model.SourceFinn:           "https://www.finn.no",
	model.SourceArbeidsplassen: "https://arbeidsplassen.nav.no",
}

// identityNamespace is the fixed UUIDv5 namespace for identity keys.
// It must never change: identity keys are persisted.
var identityNamespace = uuid.MustParse("b5e7f9a2-33c1-5d48-9c06-1f6e84a0d2b7")

// NormalizationError reports that a mandatory field (title, company or
// url) was unrecoverable from a raw posting. The item is skipped and
// logged; it never fails the source.
type NormalizationError struct {
	Source model.Source
	Field  string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s posting: missing mandatory field %q", e.Source, e.Field)
}

// Normalizer turns RawPosting values into Jobs. Now is injectable so
// relative-date parsing stays testable; it defaults to time.Now.
type Normalizer struct {
	Now func() time.Time
}

// New returns a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize maps one raw posting into a Job-shaped value. The returned
// Job carries its content hash and identity key but no seen
// timestamps; those belong to the resolver.
func (n *Normalizer) Normalize(raw model.RawPosting) (model.Job, error) {
	title := Clean(raw.Fields[model.FieldTitle])
	if title == "" {
		return model.Job{}, &NormalizationError{Source: raw.Source, Field: model.FieldTitle}
	}
	company := Clean(raw.Fields[model.FieldCompany])
	if company == "" {
		return model.Job{}, &NormalizationError{Source: raw.Source, Field: model.FieldCompany}
	}
	rawURL := strings.TrimSpace(raw.Fields[model.FieldURL])
	if rawURL == "" {
		return model.Job{}, &NormalizationError{Source: raw.Source, Field: model.FieldURL}
	}

	job := model.Job{
		Source:      raw.Source,
		ExternalID:  strings.TrimSpace(raw.Fields[model.FieldExternalID]),
		Title:       title,
		Company:     company,
		Location:    Clean(raw.Fields[model.FieldLocation]),
		URL:         resolveURL(raw.Source, rawURL),
		Description: Clean(raw.Fields[model.FieldDescription]),
		PostedAt:    n.parseDate(raw.Fields[model.FieldPostedAt]),
		Deadline:    n.parseDate(raw.Fields[model.FieldDeadline]),
	}
	job.ContentHash = ContentHash(job)
	job.IdentityKey = IdentityKey(job)
	return job, nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Clean trims and collapses all runs of whitespace to single spaces.
func Clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func resolveURL(src model.Source, rawURL string) string {
	if strings.HasPrefix(rawURL, "/") {
		return sourceBaseURLs[src] + rawURL
	}
	return rawURL
}

// ContentHash digests the normalized (title, company, location,
// description) tuple. No timestamps or other non-deterministic fields
// are folded in: the hash is the sole change-detection signal and must
// be stable across runs for identical input.
func ContentHash(job model.Job) string {
	h := sha256.New()
	for _, part := range []string{job.Title, job.Company, job.Location, job.Description} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityKey derives the stable identity of a posting. When the
// source exposes an id, identity is (source, external_id). Otherwise
// it falls back to the normalized (source, title, company, location)
// composite, trading a small false-positive risk (two distinct roles
// with identical title, company and location collapse into one) for a
// large reduction in duplicate rows when ids churn. Source is part of
// the key: cross-source duplicates are intentionally never merged.
func IdentityKey(job model.Job) string {
	var seed string
	if job.ExternalID != "" {
		seed = fmt.Sprintf("%s\x1fid\x1f%s", job.Source, job.ExternalID)
	} else {
		seed = fmt.Sprintf("%s\x1fcmp\x1f%s\x1f%s\x1f%s",
			job.Source, KeyPart(job.Title), KeyPart(job.Company), KeyPart(job.Location))
	}
	return uuid.NewSHA1(identityNamespace, []byte(seed)).String()
}

// KeyPart normalizes a composite-key component: lower-case, punctuation
// stripped, whitespace collapsed. Cosmetic edits on the site must not
// change the identity.
func KeyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return Clean(b.String())
}
