// Package scraper implements job posting extraction from external job
// sites. One Adapter per site turns fetched content into RawPosting
// records; all network I/O goes through the injected Fetcher so
// adapters stay testable against recorded fixtures.
package scraper

import (
	"context"
	"fmt"

	"jobhunt/internal/model"
)

// Adapter extracts raw postings for one external site. A malformed
// item must not abort the sequence: adapters skip it with a warning and
// keep going, so partial extraction is success.
type Adapter interface {
	Source() model.Source
	Search(ctx context.Context, kw model.SearchKeyword) ([]model.RawPosting, error)
}

// ForSource returns the adapter for src, wired to the given fetcher.
func ForSource(src model.Source, fetcher Fetcher, maxPages int) (Adapter, error) {
	switch src {
	case model.SourceFinn:
		return NewFinnAdapter(fetcher, maxPages), nil
	case model.SourceArbeidsplassen:
		return NewArbeidsplassenAdapter(fetcher, maxPages), nil
	}
	return nil, fmt.Errorf("no adapter for source %q", src)
}

// FetchError reports that a source was unreachable. It is transient:
// the run skips the source and the next scheduled run retries.
type FetchError struct {
	Source model.Source
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports that a site's markup no longer matches the
// expected structure. Item-level parse errors are logged and skipped;
// a ParseError surfaces only when a whole page is unreadable.
type ParseError struct {
	Source model.Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
