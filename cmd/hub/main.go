package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaher/quotehub/internal/cache"
	"github.com/dmaher/quotehub/internal/config"
	"github.com/dmaher/quotehub/internal/database"
	"github.com/dmaher/quotehub/internal/dispatch"
	"github.com/dmaher/quotehub/internal/enrich"
	"github.com/dmaher/quotehub/internal/feed"
	"github.com/dmaher/quotehub/internal/gateway"
	"github.com/dmaher/quotehub/internal/hub"
	"github.com/dmaher/quotehub/internal/recorder"
	"github.com/dmaher/quotehub/internal/registry"
	"github.com/dmaher/quotehub/internal/session"
	"github.com/dmaher/quotehub/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/hub.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting quote hub",
		"build", version.String(),
		"config", *configPath,
	)

	// Load configuration; missing feed credentials are fatal here.
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	clock, err := session.NewClock(cfg.Session.Timezone)
	if err != nil {
		logger.Error("failed to load session timezone", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	quotes := cache.New()
	dispatcher := dispatch.New(reg, logger)

	// Optional quote recorder
	var (
		rec *recorder.Recorder
		db  *pgxpool.Pool
	)
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Recorder.Database.Host,
			"port", cfg.Recorder.Database.Port,
			"database", cfg.Recorder.Database.Name,
		)
		db, err = database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		rec = recorder.New(cfg.Recorder, db, logger)
		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	// Enrichment sources
	primary := enrich.NewClient(
		cfg.Enrichment.DataURL,
		cfg.Feed.Key,
		cfg.Feed.Secret,
		enrich.WithLogger(logger),
		enrich.WithTimeout(cfg.Enrichment.Timeout),
		enrich.WithRetries(cfg.Enrichment.MaxRetries, 500*time.Millisecond),
	)
	chart := enrich.NewChartClient(
		cfg.Enrichment.ChartURL,
		enrich.WithChartLogger(logger),
		enrich.WithChartTimeout(cfg.Enrichment.Timeout),
	)
	resolver := enrich.NewResolver(primary, chart, clock, quotes, enrich.ResolverConfig{
		BarsTimeframe: cfg.Enrichment.BarsTimeframe,
		BarsLimit:     cfg.Enrichment.BarsLimit,
	}, logger)

	// Upstream feed connector
	connectorCfg := feed.ConnectorConfig{
		URL:            cfg.Feed.URL,
		Key:            cfg.Feed.Key,
		Secret:         cfg.Feed.Secret,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingTimeout:    cfg.Feed.PingTimeout,
		WriteTimeout:   cfg.Feed.WriteTimeout,
		BufferSize:     cfg.Feed.BufferSize,
	}
	var connectorOpts []feed.Option
	if rec != nil {
		connectorOpts = append(connectorOpts, feed.WithQuoteSink(rec))
	}
	connector := feed.NewConnector(connectorCfg, reg, quotes, dispatcher, logger, connectorOpts...)
	connector.OnStatusChange(dispatcher.PublishFeedStatus)

	if err := connector.Start(ctx); err != nil {
		// Subscribers can still connect; the reconnect loop brings
		// the feed up when the provider is reachable again.
		logger.Warn("initial feed connection failed, will retry", "error", err)
		connector.ScheduleReconnect()
	}

	// Hub facade and downstream gateway
	quoteHub := hub.New(reg, quotes, connector, resolver, logger,
		hub.WithEnrichTimeout(cfg.Enrichment.Timeout))

	gatewayServer := gateway.NewServer(gateway.Config{
		Addr:           cfg.Server.Addr,
		SendBufferSize: cfg.Server.SendBufferSize,
	}, quoteHub, logger)
	if err := gatewayServer.Start(); err != nil {
		logger.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}

	// Status/health server
	statusServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Status.Port),
		Handler: createStatusHandler(quoteHub, db, rec, logger),
	}
	go func() {
		logger.Info("starting status server", "port", cfg.Status.Port)
		if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("status server error", "error", err)
		}
	}()

	logger.Info("quote hub running",
		"instance_id", cfg.Instance.ID,
		"gateway_addr", cfg.Server.Addr,
		"status_url", fmt.Sprintf("http://localhost:%d/health", cfg.Status.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	gatewayServer.Stop(shutdownCtx)
	statusServer.Shutdown(shutdownCtx)
	connector.Stop(shutdownCtx)
	if rec != nil {
		rec.Stop(shutdownCtx)
	}

	logger.Info("quote hub stopped")
}

// createStatusHandler creates the HTTP handler for health checks and
// the operational status snapshot.
func createStatusHandler(quoteHub *hub.Hub, db *pgxpool.Pool, rec *recorder.Recorder, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if quoteHub.IsConnected() {
			health.Components["feed"] = "connected"
		} else {
			health.Status = "degraded"
			health.Components["feed"] = "disconnected"
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/status", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"hub": quoteHub.Status(),
		}
		if rec != nil {
			payload["recorder"] = rec.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})

	return mux
}
