package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/posts/backend/internal/config"
	"github.com/emilythestrangee/posts/backend/internal/database"
	"github.com/emilythestrangee/posts/backend/internal/handlers"
	"github.com/emilythestrangee/posts/backend/internal/logging"
	"github.com/emilythestrangee/posts/backend/internal/metrics"
	"github.com/emilythestrangee/posts/backend/internal/middleware"
	"github.com/emilythestrangee/posts/backend/internal/posts"
	"github.com/emilythestrangee/posts/backend/internal/server"
	"github.com/emilythestrangee/posts/backend/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "api",
		Short:         "Post publishing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context()) },
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate() },
	}
	root.AddCommand(serve, migrate)
	root.RunE = serve.RunE
	return root
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runMigrate() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db.GetDB()); err != nil {
		return err
	}
	logger.Info("schema migrated")
	return nil
}

func runServe(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db.GetDB()); err != nil {
		return err
	}

	m, err := metrics.New("posts", nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := storage.NewGCSStore(ctx, cfg.Storage.Bucket, cfg.Storage.SignerEmail)
	if err != nil {
		return err
	}
	defer store.Close()

	layout := storage.Layout{
		Bucket:          cfg.Storage.Bucket,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		TempPrefix:      cfg.Storage.TempPrefix,
		PermanentPrefix: cfg.Storage.PermanentPrefix,
	}
	lifecycle := storage.NewLifecycle(store, storage.LifecycleOptions{
		Layout:      layout,
		Timeout:     cfg.Storage.Timeout,
		Concurrency: cfg.Storage.Concurrency,
		Logger:      logger,
		Metrics:     m,
	})
	issuer := storage.NewIssuer(store, layout, cfg.Storage.SignedURLTTL)

	engine := posts.NewEngine(
		posts.NewStore(db.GetDB(), cfg.TxTimeout, logger, m),
		lifecycle,
		posts.Options{
			TempPrefix: cfg.Storage.TempPrefix,
			Resolver:   layout.Resolver(),
			Logger:     logger,
			Metrics:    m,
		},
	)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	tokens := middleware.NewTokens(cfg.JWTSecret, 72*time.Hour)
	srv := server.NewServer(server.Options{
		Port:    cfg.Port,
		Handler: handlers.NewHandler(db.GetDB(), tokens, engine, issuer, layout.Resolver(), logger),
		Tokens:  tokens,
		Health:  db,
		Logger:  logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
