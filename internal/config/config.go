// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"jobhunt/internal/model"
)

// Config holds all runtime configuration. It is built once at startup
// and passed explicitly into the scheduler; nothing reads the
// environment after Load returns.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	Keywords []string
	Location string
	Sources  []model.Source

	ScrapeIntervalHours  int           // how often the cron job fires
	MaxConcurrentSources int           // bounded fan-out during a run
	StaleAfter           time.Duration // last_seen_at age before a job counts as stale
	FetchTimeout         time.Duration
	MaxPages             int // per (source, keyword) pagination cap
}

const (
	defaultKeywords = "Junior utvikler,Python utvikler,Backend utvikler,Dataanalytiker"
	defaultLocation = "Oslo"
)

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	interval := 6
	if s := os.Getenv("SCRAPE_INTERVAL_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCRAPE_INTERVAL_HOURS must be a positive integer, got %q", s)
		}
		interval = v
	}

	sources, err := parseSources(getEnvString("SOURCES", "finn,arbeidsplassen"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                 getEnvString("PORT", "8080"),
		DatabaseURL:          dbURL,
		RedisURL:             redisURL,
		Keywords:             splitList(getEnvString("SEARCH_KEYWORDS", defaultKeywords)),
		Location:             getEnvString("SEARCH_LOCATION", defaultLocation),
		Sources:              sources,
		ScrapeIntervalHours:  interval,
		MaxConcurrentSources: getEnvInt("MAX_CONCURRENT_SOURCES", 2),
		StaleAfter:           getEnvDuration("STALE_AFTER", 14*24*time.Hour),
		FetchTimeout:         getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		MaxPages:             getEnvInt("MAX_PAGES", 5),
	}, nil
}

func parseSources(raw string) ([]model.Source, error) {
	var sources []model.Source
	for _, s := range splitList(raw) {
		src, err := model.ParseSource(s)
		if err != nil {
			return nil, fmt.Errorf("SOURCES: %w", err)
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("SOURCES must name at least one source")
	}
	return sources, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
