package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"jobhunt/internal/model"
)

const (
	arbeidsplassenBaseURL   = "https://arbeidsplassen.nav.no"
	arbeidsplassenSearchURL = "https://arbeidsplassen.nav.no/stillinger/api/search"
	arbeidsplassenPageSize  = 25
)

// arbeidsplassenCountyCodes maps major Norwegian cities to NAV county
// filter codes.
var arbeidsplassenCountyCodes = map[string]string{
	"oslo":         "03",
	"bergen":       "46",
	"trondheim":    "50",
	"stavanger":    "11",
	"tromsø":       "54",
	"kristiansand": "42",
}

// searchResponse mirrors the top-level NAV search API JSON response.
type searchResponse struct {
	Content       []searchItem `json:"content"`
	TotalElements int          `json:"totalElements"`
}

// searchItem mirrors a single listing in the search response.
type searchItem struct {
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	Published string `json:"published"`
	Expires   string `json:"expires"`
	Employer  struct {
		Name string `json:"name"`
	} `json:"employer"`
	Workplace struct {
		City      string `json:"city"`
		Municipal string `json:"municipal"`
	} `json:"workplace"`
	Description string `json:"description"`
}

// ArbeidsplassenAdapter extracts job listings from the NAV job portal's
// JSON search API.
type ArbeidsplassenAdapter struct {
	fetcher  Fetcher
	maxPages int
}

// NewArbeidsplassenAdapter constructs an arbeidsplassen.no adapter.
func NewArbeidsplassenAdapter(fetcher Fetcher, maxPages int) *ArbeidsplassenAdapter {
	return &ArbeidsplassenAdapter{fetcher: fetcher, maxPages: maxPages}
}

// Source returns the site identifier.
func (a *ArbeidsplassenAdapter) Source() model.Source { return model.SourceArbeidsplassen }

// Search pages through the search API until results run out or the
// page cap is reached. Items without a UUID cannot be linked back to a
// listing and are skipped with a warning.
func (a *ArbeidsplassenAdapter) Search(ctx context.Context, kw model.SearchKeyword) ([]model.RawPosting, error) {
	var postings []model.RawPosting

	for page := 0; page < a.maxPages; page++ {
		searchURL := a.searchURL(kw, page)

		body, err := a.fetcher.Fetch(ctx, searchURL)
		if err != nil {
			return postings, &FetchError{Source: a.Source(), URL: searchURL, Err: err}
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return postings, &ParseError{Source: a.Source(), Err: err}
		}
		if len(resp.Content) == 0 {
			break
		}

		for _, item := range resp.Content {
			if item.UUID == "" {
				slog.Warn("skipping arbeidsplassen item without uuid", "keyword", kw.Keyword)
				continue
			}
			postings = append(postings, a.toPosting(item, kw))
		}

		if (page+1)*arbeidsplassenPageSize >= resp.TotalElements {
			break
		}
	}

	return postings, nil
}

func (a *ArbeidsplassenAdapter) searchURL(kw model.SearchKeyword, page int) string {
	params := url.Values{}
	params.Set("q", kw.Keyword)
	params.Set("from", strconv.Itoa(page*arbeidsplassenPageSize))
	params.Set("size", strconv.Itoa(arbeidsplassenPageSize))
	if code, ok := arbeidsplassenCountyCodes[strings.ToLower(kw.Location)]; ok {
		params.Set("counties", code)
	}
	return fmt.Sprintf("%s?%s", arbeidsplassenSearchURL, params.Encode())
}

func (a *ArbeidsplassenAdapter) toPosting(item searchItem, kw model.SearchKeyword) model.RawPosting {
	fields := map[string]string{
		model.FieldExternalID: item.UUID,
		model.FieldTitle:      item.Title,
		model.FieldURL:        fmt.Sprintf("%s/stillinger/stilling/%s", arbeidsplassenBaseURL, item.UUID),
	}
	if item.Employer.Name != "" {
		fields[model.FieldCompany] = item.Employer.Name
	}
	location := item.Workplace.City
	if location == "" {
		location = item.Workplace.Municipal
	}
	if location == "" {
		location = kw.Location
	}
	fields[model.FieldLocation] = location
	if item.Description != "" {
		fields[model.FieldDescription] = item.Description
	}
	if item.Published != "" {
		fields[model.FieldPostedAt] = item.Published
	}
	if item.Expires != "" {
		fields[model.FieldDeadline] = item.Expires
	}
	return model.RawPosting{Source: model.SourceArbeidsplassen, Fields: fields}
}
