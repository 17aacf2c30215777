package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlask/sqlask/internal/api"
	"github.com/sqlask/sqlask/internal/api/uistatic"
	"github.com/sqlask/sqlask/internal/assistant"
	"github.com/sqlask/sqlask/internal/config"
	"github.com/sqlask/sqlask/internal/maintenance"
	"github.com/sqlask/sqlask/internal/nl2sql"
	"github.com/sqlask/sqlask/internal/observability"
	"github.com/sqlask/sqlask/internal/query"
	duckdbengine "github.com/sqlask/sqlask/internal/query/duckdb"
	sqliteengine "github.com/sqlask/sqlask/internal/query/sqlite"
	"github.com/sqlask/sqlask/internal/safety"
	"github.com/sqlask/sqlask/internal/session"
	"github.com/sqlask/sqlask/internal/storage"
	localstore "github.com/sqlask/sqlask/internal/storage/local"
	s3store "github.com/sqlask/sqlask/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlask-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	uploadStore, err := openUploadStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize upload store", slog.Any("error", err))
		os.Exit(1)
	}

	engine := query.NewRouter(sqliteengine.NewEngine(uploadStore))
	engine.Register(".duckdb", duckdbengine.NewEngine(uploadStore))

	translator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}
	var answerer nl2sql.Answerer
	if cfg.AI.Summarize {
		answerer = translator
	}

	mode, err := safety.ParseMode(cfg.Safety.Mode)
	if err != nil {
		logger.Error("invalid safety config", slog.Any("error", err))
		os.Exit(1)
	}
	order, err := safety.ParseOrder(cfg.Safety.Order)
	if err != nil {
		logger.Error("invalid safety config", slog.Any("error", err))
		os.Exit(1)
	}
	if order == safety.OrderAfter {
		logger.Warn("safety gate runs after execution; blocked statements still reach the database",
			slog.String("upload_store", cfg.Upload.Store))
	}

	svc, err := assistant.New(assistant.Config{
		RowLimit:         cfg.Query.RowLimit,
		SchemaSampleRows: cfg.Query.SchemaSampleRows,
		Order:            order,
	}, assistant.Dependencies{
		Store:      uploadStore,
		Engine:     engine,
		Translator: translator,
		Answerer:   answerer,
		Gate:       safety.NewGate(mode),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := session.NewManager()
	sweeper := &maintenance.Service{
		Sessions: sessions,
		Releaser: svc,
		Config: maintenance.Config{
			IdleTTL:       cfg.Session.IdleTTL,
			SweepInterval: cfg.Session.SweepInterval,
		},
		Logger: logger,
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:    logger,
		Assistant: svc,
		Sessions:  sessions,
		UI:        uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckUploadStoreConfig(cfg),
			api.CheckAIConfig(cfg),
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		_ = sweeper.Run(ctx)
	}()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("upload_store", cfg.Upload.Store),
			slog.String("safety_mode", string(mode)),
			slog.String("safety_order", string(order)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openUploadStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.Upload.Store == config.UploadStoreS3 {
		return s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
	}
	return localstore.New(cfg.Upload.Dir)
}
