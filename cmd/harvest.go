package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/alert"
	"github.com/urbanpulse/event-harvester/internal/config"
	"github.com/urbanpulse/event-harvester/internal/dedup"
	"github.com/urbanpulse/event-harvester/internal/extract"
	"github.com/urbanpulse/event-harvester/internal/fetch"
	"github.com/urbanpulse/event-harvester/internal/logging"
	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/normalize"
	"github.com/urbanpulse/event-harvester/internal/orchestrator"
	"github.com/urbanpulse/event-harvester/internal/pipeline"
	"github.com/urbanpulse/event-harvester/internal/politeness"
	"github.com/urbanpulse/event-harvester/internal/ratelimit"
	"github.com/urbanpulse/event-harvester/internal/retry"
	"github.com/urbanpulse/event-harvester/internal/store"
	"github.com/urbanpulse/event-harvester/internal/venue"
)

var (
	sourcesFile string
	dryRun      bool
	metricsAddr string
)

// newHarvestCmd creates the 'harvest' subcommand, which runs one full crawl
// over the configured sources.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one harvest pass over all configured sources",
		Long: `Crawls every source in the source list, extracts event listings,
normalizes and deduplicates them, and enriches new events with venue
details. With --dry-run everything runs against an in-memory store and
nothing is persisted.`,
		RunE: runHarvestCommand,
	}
	cmd.Flags().StringVar(&sourcesFile, "sources", "sources.yaml", "source list file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run without persisting anything")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (empty disables)")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sources, err := config.LoadSources(sourcesFile)
	if err != nil {
		return err
	}

	metrics.Init()
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	p := buildPipeline(cfg, st, logger)
	o := buildOrchestrator(cfg, st, logger)

	start := time.Now()
	summary, err := o.Run(ctx, sources, p.HandleFetch)
	if err != nil {
		return fmt.Errorf("harvest run: %w", err)
	}

	stats := p.Stats()
	logger.Info("harvest finished",
		zap.String("run_id", summary.RunID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("dry_run", dryRun),
		zap.Int("sources", summary.Sources),
		zap.Int("fetched", summary.Fetched),
		zap.Int("not_modified", summary.NotModified),
		zap.Int("failed", summary.Failed),
		zap.Int("blocked", summary.Blocked),
		zap.Int("alerts_sent", summary.AlertsSent),
		zap.Int("cards", stats.Cards),
		zap.Int("events_inserted", stats.Inserted),
		zap.Int("events_updated", stats.Updated),
		zap.Int("events_skipped", stats.Skipped),
		zap.Int("events_enriched", stats.Enriched),
	)

	for sourceID, method := range p.PreferredMethods() {
		logger.Debug("winning extraction method",
			zap.String("source", sourceID), zap.String("method", string(method)))
	}
	return nil
}

// buildStore picks the backing store: in-memory for dry runs or when no DSN
// is configured, Postgres otherwise.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if dryRun || cfg.DB.DSN == "" {
		if !dryRun {
			logger.Warn("no database configured; results will not be persisted")
		}
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func buildPipeline(cfg config.Config, st store.Store, logger *zap.Logger) *pipeline.Pipeline {
	var ai extract.AIClient
	if cfg.AI.Enabled {
		ai = extract.NewHTTPAIClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.HTTPTimeout())
	}
	waterfall := extract.NewWaterfall(
		extract.Config{HydrationMaxDepth: cfg.Extract.HydrationMaxDepth}, ai, logger)

	matcher := venue.NewMatcher(venue.DefaultRegistry(),
		cfg.Venue.FloorContainment, cfg.Venue.FloorEditDistance)
	var places venue.PlacesClient
	if cfg.Places.BaseURL != "" {
		places = venue.NewHTTPPlacesClient(cfg.Places.BaseURL, cfg.Places.APIKey,
			cfg.Venue.DailyBudget, cfg.HTTPTimeout())
	}
	enricher := venue.NewEnricher(matcher, places, st, logger)

	resolver := dedup.NewResolver(st, cfg.Dedup.PromotionMinGain, logger)
	return pipeline.New(waterfall, normalize.New(logger), resolver, enricher, st, logger)
}

func buildOrchestrator(cfg config.Config, st store.Store, logger *zap.Logger) *orchestrator.Orchestrator {
	fetcher := fetch.New(fetch.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		BodyCapBytes: cfg.Crawler.BodyCapBytes,
	})
	gate := politeness.New(cfg.Crawler.UserAgent, cfg.RobotsTTL(), logger)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPM:         cfg.Crawler.DefaultRPM,
		DefaultConcurrency: cfg.Crawler.DomainConcurrency,
		DomainParallelism:  cfg.Crawler.DomainParallelism,
	})
	policy := retry.New(
		time.Duration(cfg.Retry.BaseMs)*time.Millisecond,
		time.Duration(cfg.Retry.CapMs)*time.Millisecond,
	)
	webhookURL := cfg.Alert.WebhookURL
	if dryRun {
		// Dry runs log failures but never page anyone.
		webhookURL = ""
	}
	notifier := alert.NewNotifier(webhookURL, cfg.HTTPTimeout(), logger)

	return orchestrator.New(orchestrator.Config{
		MaxAttempts:       cfg.Crawler.MaxAttempts,
		BaseDelay:         time.Duration(cfg.Crawler.BaseDelayMs) * time.Millisecond,
		Jitter:            time.Duration(cfg.Crawler.JitterMs) * time.Millisecond,
		FailureThreshold:  cfg.Crawler.FailureThreshold,
		SuppressionWindow: cfg.SuppressionWindow(),
	}, fetcher, gate, limiter, policy, st, notifier, logger)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
