// jobhunt — job posting ingestion and application tracking
//
// Scrapes Norwegian job boards (finn.no, arbeidsplassen.nav.no) on a
// cron schedule, deduplicates postings into a canonical store, and
// tracks applications through a pipeline state machine. Exposes a
// REST API for:
//   - triggering and inspecting ingestion runs
//   - browsing deduplicated jobs
//   - moving applications through the pipeline
//   - analytics (keyword yield, top companies, funnel)
//
// Publishes EVENT_RUN_COMPLETED and EVENT_STATUS_CHANGED to Redis for
// downstream notification consumers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobhunt/internal/analytics"
	"jobhunt/internal/config"
	"jobhunt/internal/db"
	"jobhunt/internal/events"
	"jobhunt/internal/model"
	"jobhunt/internal/scheduler"
	"jobhunt/internal/scraper"
	"jobhunt/internal/server"
	"jobhunt/internal/store"
	"jobhunt/internal/tracker"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[jobhunt] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[jobhunt] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[jobhunt] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[jobhunt] PostgreSQL connected ✓")

	st, err := store.NewPostgres(ctx, pool)
	if err != nil {
		log.Fatalf("[jobhunt] Schema: %v", err)
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[jobhunt] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[jobhunt] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[jobhunt] Redis connected ✓")

	publisher := events.NewRedis(rdb)

	// ── Keywords ─────────────────────────────────────────────────────────────
	if err := seedKeywords(ctx, st, cfg); err != nil {
		log.Fatalf("[jobhunt] Seed keywords: %v", err)
	}

	// ── Scraping pipeline ────────────────────────────────────────────────────
	fetcher := scraper.NewHTTPFetcher(cfg.FetchTimeout)
	var adapters []scraper.Adapter
	for _, src := range cfg.Sources {
		adapter, err := scraper.ForSource(src, fetcher, cfg.MaxPages)
		if err != nil {
			log.Fatalf("[jobhunt] Adapter: %v", err)
		}
		adapters = append(adapters, adapter)
	}

	runner := scheduler.NewRunner(st, adapters, cfg.MaxConcurrentSources, publisher)
	sched := scheduler.New(runner, cfg.ScrapeIntervalHours)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[jobhunt] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	trk := tracker.NewService(st, publisher)
	agg := analytics.New(st, cfg.StaleAfter)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := server.NewHandler(st, runner, trk, agg)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[jobhunt] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[jobhunt] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[jobhunt] Shutting down…")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[jobhunt] Shutdown error: %v", err)
	}
	log.Println("[jobhunt] Stopped.")
}

// seedKeywords registers configured search keywords, skipping ones the
// store already knows so accumulated stats survive restarts.
func seedKeywords(ctx context.Context, st store.Store, cfg *config.Config) error {
	existing, err := st.ListKeywords(ctx, false)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, kw := range existing {
		known[kw.Keyword+"\x1f"+kw.Location] = true
	}

	for _, keyword := range cfg.Keywords {
		if known[keyword+"\x1f"+cfg.Location] {
			continue
		}
		kw := model.SearchKeyword{Keyword: keyword, Location: cfg.Location, Active: true}
		if err := st.SaveKeyword(ctx, kw); err != nil {
			return err
		}
		log.Printf("[jobhunt] Registered keyword %q (%s)", keyword, cfg.Location)
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "jobhunt",
		"version": version,
	})
}
