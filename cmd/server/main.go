// Command server runs the FamHealth API: document ingestion, health-context
// chat, and advice generation for family health records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/famhealth/famhealth/internal/advice"
	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/api"
	"github.com/famhealth/famhealth/internal/cache"
	"github.com/famhealth/famhealth/internal/chat"
	"github.com/famhealth/famhealth/internal/config"
	"github.com/famhealth/famhealth/internal/ingest"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/ocr"
	"github.com/famhealth/famhealth/internal/report"
	"github.com/famhealth/famhealth/internal/settings"
	"github.com/famhealth/famhealth/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	cacheClient, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	members := storage.NewMemberRepository(db)
	docs := storage.NewDocumentRepository(db)
	records := storage.NewHealthRecordRepository(db)
	chats := storage.NewChatRepository(db)
	settingsRepo := storage.NewSettingsRepository(db)

	settingsSvc := settings.NewService(settingsRepo, cfg.AI)

	aiClient := ai.NewClient(settingsSvc, logger, ai.Options{
		Timeout:     cfg.AI.RequestTimeout,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})

	rasterizer := ocr.NewRasterizer(cfg.Ingest.JPEGQuality, logger)
	recognizer := ocr.NewRecognizer(aiClient, logger)
	aggregator := ocr.NewAggregator(recognizer, cfg.Ingest.ParallelPages, logger)
	extractor := report.NewExtractor(aiClient, logger)

	ingestSvc := ingest.NewService(rasterizer, aggregator, extractor, logger)
	runner := ingest.NewRunner(ingestSvc, docs, cacheClient, logger)

	contexts := chat.NewContextBuilder(docs, records, members, cacheClient)
	chatSvc := chat.NewService(chats, aiClient, contexts, logger)
	adviceSvc := advice.NewService(aiClient, contexts, logger)

	server := api.NewServer(cfg, logger, members, docs, records, chatSvc, contexts, runner, settingsSvc, adviceSvc)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
