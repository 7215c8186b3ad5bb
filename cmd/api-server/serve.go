package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"partsmarket/config"
	"partsmarket/db"
	"partsmarket/internal/cache"
	"partsmarket/internal/crm"
	"partsmarket/internal/handlers"
	"partsmarket/internal/lease"
	"partsmarket/internal/realtime"
	"partsmarket/internal/telemetry"
	"partsmarket/internal/textparse"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := connect(cfg.DB)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	store := db.NewStorage(dbConn)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}
	defer redisCache.Close()

	metrics := telemetry.Global()
	hub := realtime.NewHub()

	opts := []handlers.Option{
		handlers.WithLeases(lease.New(redisCache.Client())),
		handlers.WithCache(redisCache),
		handlers.WithHub(hub),
		handlers.WithMetrics(metrics),
		handlers.WithWorkflow(cfg.Workflow),
		handlers.WithDashboardTTL(cfg.Cache.DashboardTTL),
	}
	if p := newParser(ctx, cfg.Parser); p != nil {
		opts = append(opts, handlers.WithParser(p))
	}
	if s := newSyncer(cfg.CRM, store, metrics); s != nil {
		if cfg.CRM.WebhookSecret == "" {
			log.Warn().Msg("crm.webhook_secret is not set, CRM webhook will reject all requests")
		}
		opts = append(opts, handlers.WithCRM(s, cfg.CRM.WebhookSecret))
	}
	h := handlers.NewHandler(store, opts...)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     h.Routes(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := realtime.Listen(ctx, cfg.DB.DSN, hub)
		if err != nil && !errors.Is(err, context.Canceled) {
			// чат продолжит работать без push-уведомлений
			log.Error().Err(err).Msg("Chat listener stopped")
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("address", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

func newParser(ctx context.Context, cfg config.ParserConfig) *textparse.Parser {
	if !cfg.Enabled {
		return nil
	}
	llm, err := textparse.NewGenAICompleter(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize parser, continuing without text parsing")
		return nil
	}
	return textparse.NewParser(llm)
}

func newSyncer(cfg config.CRMConfig, store *db.Storage, metrics *telemetry.Metrics) *crm.Syncer {
	if !cfg.Enabled {
		return nil
	}
	client, err := crm.NewClient(cfg.WebhookURL, cfg.Timeout)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize CRM client, continuing without CRM sync")
		return nil
	}
	return crm.NewSyncer(client, store, cfg.StageID, metrics)
}
