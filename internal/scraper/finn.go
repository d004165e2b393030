package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobhunt/internal/model"
)

const (
	finnBaseURL   = "https://www.finn.no"
	finnSearchURL = "https://www.finn.no/job/fulltime/search.html"
)

// finnLocationCodes maps major Norwegian cities to finn.no location
// filter codes.
var finnLocationCodes = map[string]string{
	"oslo":         "0.20001",
	"bergen":       "0.20003",
	"trondheim":    "0.20012",
	"stavanger":    "0.20011",
	"tromsø":       "0.20016",
	"kristiansand": "0.20009",
	"drammen":      "0.20002",
}

var finnkodeRe = regexp.MustCompile(`finnkode=(\d+)`)

// FinnAdapter extracts job listings from finn.no search result pages.
// Finn renders listings as article cards whose structure changes often,
// so every field is read through a chain of fallback selectors.
type FinnAdapter struct {
	fetcher  Fetcher
	maxPages int
}

// NewFinnAdapter constructs a finn.no adapter.
func NewFinnAdapter(fetcher Fetcher, maxPages int) *FinnAdapter {
	return &FinnAdapter{fetcher: fetcher, maxPages: maxPages}
}

// Source returns the site identifier.
func (a *FinnAdapter) Source() model.Source { return model.SourceFinn }

// Search fetches up to maxPages of results for the keyword and yields
// one RawPosting per parseable article card. Unparseable cards are
// logged and skipped.
func (a *FinnAdapter) Search(ctx context.Context, kw model.SearchKeyword) ([]model.RawPosting, error) {
	var postings []model.RawPosting

	totalPages := 1
	for page := 1; page <= a.maxPages && page <= totalPages; page++ {
		searchURL := a.searchURL(kw, page)

		body, err := a.fetcher.Fetch(ctx, searchURL)
		if err != nil {
			return postings, &FetchError{Source: a.Source(), URL: searchURL, Err: err}
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return postings, &ParseError{Source: a.Source(), Err: err}
		}

		if page == 1 {
			totalPages = finnTotalPages(doc)
		}

		cards := doc.Find(`article[class*="ad-card"], article[class*="job-ad"], article[class*="result-item"]`)
		if cards.Length() == 0 {
			cards = doc.Find("article")
		}
		if cards.Length() == 0 {
			cards = doc.Find(`[data-testid="ad-card"]`)
		}

		cards.Each(func(_ int, card *goquery.Selection) {
			posting, ok := a.parseCard(card, kw)
			if !ok {
				slog.Warn("skipping unparseable finn card", "page", page, "keyword", kw.Keyword)
				return
			}
			postings = append(postings, posting)
		})
	}

	return postings, nil
}

func (a *FinnAdapter) searchURL(kw model.SearchKeyword, page int) string {
	params := url.Values{}
	params.Set("q", kw.Keyword)
	params.Set("sort", "PUBLISHED_DESC")
	if code, ok := finnLocationCodes[strings.ToLower(kw.Location)]; ok {
		params.Set("location", code)
	}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return fmt.Sprintf("%s?%s", finnSearchURL, params.Encode())
}

// parseCard extracts one listing from an article card. A card without a
// job link is not a listing and is reported as unparseable.
func (a *FinnAdapter) parseCard(card *goquery.Selection, kw model.SearchKeyword) (model.RawPosting, bool) {
	link := card.Find(`a[href*="finnkode="]`).First()
	if link.Length() == 0 {
		link = card.Find(`a[href*="/job/fulltime/ad.html"]`).First()
	}
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return model.RawPosting{}, false
	}

	fields := map[string]string{model.FieldURL: href}

	if m := finnkodeRe.FindStringSubmatch(href); m != nil {
		fields[model.FieldExternalID] = m[1]
	}

	title := firstText(card, "h2", "h3")
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}
	fields[model.FieldTitle] = title

	if company := finnCompany(card); company != "" {
		fields[model.FieldCompany] = company
	}

	location := firstText(card, `span[class*="location"]`, `span[class*="place"]`)
	if location == "" {
		location = kw.Location
	}
	fields[model.FieldLocation] = location

	// Posted date on finn is relative text like "2 dager siden"; the
	// normalizer turns it into an absolute date.
	if posted := strings.TrimSpace(card.Find("time").First().Text()); posted != "" {
		fields[model.FieldPostedAt] = posted
	}

	return model.RawPosting{Source: model.SourceFinn, Fields: fields}, true
}

// finnCompany finds the employer name. There is no stable selector, so
// scan the card's spans and take the first one that is not a UI label.
func finnCompany(card *goquery.Selection) string {
	if c := firstText(card, `span[class*="text-gray"]`, `span[class*="job-ad-company"]`); c != "" && !finnUILabel(c) {
		return c
	}
	var company string
	card.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 2 && !finnUILabel(text) {
			company = text
			return false
		}
		return true
	})
	return company
}

var finnExcluded = []string{
	"dag", "time", "uke", "oslo", "bergen", "favoritt", "legg til",
	"lagre", "saved", "sist", "publisert", "stillinger",
}

func finnUILabel(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range finnExcluded {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// finnTotalPages reads the highest page number out of the pagination
// nav; a missing nav means a single page of results.
func finnTotalPages(doc *goquery.Document) int {
	max := 1
	doc.Find(`nav[class*="pagination"] a`).Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > max {
			max = n
		}
	})
	return max
}

// firstText returns the trimmed text of the first selector that
// matches a non-empty element.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
