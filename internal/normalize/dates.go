package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// absoluteFormats are tried in order for free-text dates. The last one
// is the Norwegian dd.mm.yyyy convention.
var absoluteFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006",
}

var relativeRe = regexp.MustCompile(`(\d+)\s*(minutt|time|dag|uke|måned)`)

// parseDate parses a free-text date into a canonical time. Finn
// publishes relative Norwegian phrases ("2 dager siden"), NAV
// publishes ISO timestamps. Unparseable input falls back to nil rather
// than a guess.
func (n *Normalizer) parseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for _, layout := range absoluteFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}

	return n.parseRelative(strings.ToLower(text))
}

func (n *Normalizer) parseRelative(text string) *time.Time {
	now := n.Now().UTC()

	if strings.Contains(text, "i dag") || strings.Contains(text, "nettopp") {
		return &now
	}
	if strings.Contains(text, "i går") {
		t := now.AddDate(0, 0, -1)
		return &t
	}

	m := relativeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}

	var t time.Time
	switch m[2] {
	case "minutt":
		t = now.Add(-time.Duration(num) * time.Minute)
	case "time":
		t = now.Add(-time.Duration(num) * time.Hour)
	case "dag":
		t = now.AddDate(0, 0, -num)
	case "uke":
		t = now.AddDate(0, 0, -7*num)
	case "måned":
		t = now.AddDate(0, -num, 0)
	default:
		return nil
	}
	return &t
}
