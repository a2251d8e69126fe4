package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tanpredict/internal/collector"
	"tanpredict/internal/config"
	"tanpredict/internal/dataprep"
	"tanpredict/internal/directions"
	"tanpredict/internal/forest"
	"tanpredict/internal/geocode"
	"tanpredict/internal/gtfs"
	"tanpredict/internal/handler"
	"tanpredict/internal/ingest"
	"tanpredict/internal/model"
	"tanpredict/internal/realtime"
	"tanpredict/internal/route"
	"tanpredict/internal/server"
	"tanpredict/internal/storage"
	"tanpredict/internal/tan"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.Load()

	// CLI flags
	configPath := flag.String("config", "", "YAML file overlaid on the environment configuration")
	flag.StringVar(&cfg.ImportPath, "import", "", "Import stop events from an .xlsx or .csv export, then exit")
	flag.BoolVar(&cfg.Collect, "collect", false, "Poll live wait times for every stop until the window closes, then exit")
	flag.BoolVar(&cfg.Enrich, "enrich", false, "Build the enriched stop events table, then exit")
	flag.BoolVar(&cfg.Evaluate, "evaluate", false, "Train every model, log the held-out scores, then exit")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	if *configPath != "" {
		if err := config.LoadFile(cfg, *configPath); err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}

	// Context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open database
	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch {
	case cfg.ImportPath != "":
		err = runImport(ctx, cfg, db, logger)
	case cfg.Collect:
		err = runCollect(ctx, cancel, cfg, db, logger)
	case cfg.Enrich:
		err = runEnrich(ctx, db, logger)
	case cfg.Evaluate:
		_, err = buildPipeline(ctx, cfg, db, logger)
	default:
		err = serve(ctx, cancel, cfg, db, logger)
	}
	if err != nil {
		logger.Error("fatal", "error", err)
		db.Close()
		os.Exit(1)
	}
}

func runImport(ctx context.Context, cfg *config.Config, db *storage.DB, logger *slog.Logger) error {
	n, err := ingest.New(db, logger).ImportFile(ctx, cfg.ImportPath, cfg.ImportSheet)
	if err != nil {
		return fmt.Errorf("import %s: %w", cfg.ImportPath, err)
	}
	logger.Info("import complete", "rows", n)
	return nil
}

func runCollect(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, db *storage.DB, logger *slog.Logger) error {
	stops, err := loadStops(ctx, cfg, logger)
	if err != nil {
		return err
	}
	onSignal(cancel, logger)

	// Every round must reach the API; a cached answer would be stored as a new poll.
	api := tan.NewClient(cfg.TanBaseURL, cfg.UserAgent, 0, logger)
	c := collector.New(api, db, stops, collector.Options{
		Interval: cfg.CollectInterval,
		Window:   cfg.CollectWindow,
	}, logger)
	rounds, err := c.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("collect: %w", err)
	}
	rows := 0
	for _, r := range rounds {
		rows += r.Rows
	}
	logger.Info("collection complete", "rounds", len(rounds), "rows", rows)
	return nil
}

// loadStops reads the local stops.txt when configured, otherwise downloads
// the GTFS feed.
func loadStops(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]gtfs.Stop, error) {
	if cfg.StopsPath != "" {
		return gtfs.LoadStops(cfg.StopsPath, logger)
	}
	if cfg.GTFSURL == "" {
		return nil, errors.New("collect: set TAN_STOPS_PATH or TAN_GTFS_URL")
	}
	dir := filepath.Join(filepath.Dir(cfg.DBPath), "gtfs")
	return gtfs.NewDownloader(cfg.GTFSURL, dir, logger).FetchStops(ctx)
}

func runEnrich(ctx context.Context, db *storage.DB, logger *slog.Logger) error {
	n, err := db.BuildEnriched(ctx, storage.SnapshotsTable)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	logger.Info("enrichment complete", "table", storage.EnrichedTable, "rows", n)
	return nil
}

func buildPipeline(ctx context.Context, cfg *config.Config, db *storage.DB, logger *slog.Logger) (*model.Pipeline, error) {
	corpus := db.Corpus(cfg.EnrichedData)
	logger.Info("training prediction pipeline", "table", corpus.Table(), "trees", cfg.Trees)
	return model.Build(ctx, corpus, model.BuildOptions{
		Prepare: dataprep.Options{WithMinuteOfDay: cfg.MinuteOfDay},
		Train: model.TrainOptions{
			TestFraction: cfg.TestFraction,
			Seed:         cfg.Seed,
			Forest:       forest.Params{Trees: cfg.Trees},
		},
	}, logger)
}

func serve(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, db *storage.DB, logger *slog.Logger) error {
	// Models are trained before the server accepts requests
	pipeline, err := buildPipeline(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	// Start GTFS-RT service alerts fetcher
	rtStore := realtime.NewStore()
	if cfg.AlertsURL != "" {
		go realtime.NewFetcher(cfg.AlertsURL, 5*time.Minute, rtStore, logger).Start(ctx)
	}

	dirs := directions.NewClient(cfg.DirectionsURL, cfg.GoogleAPIKey, logger)
	if cfg.GoogleAPIKey == "" {
		logger.Warn("no GOOGLE_API_KEY set; route queries will fail")
	}
	resolver := route.NewResolver(dirs, geocode.New("", cfg.UserAgent), logger)
	stops := tan.NewClient(cfg.TanBaseURL, cfg.UserAgent, time.Minute, logger)

	srv := server.New(cfg, handler.Deps{
		Pipeline: pipeline,
		Routes:   resolver,
		Stops:    stops,
		Alerts:   rtStore,
		Meta:     db,
	}, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// onSignal cancels the run on SIGINT/SIGTERM.
func onSignal(cancel context.CancelFunc, logger *slog.Logger) {
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("interrupted, finishing")
		cancel()
	}()
}
