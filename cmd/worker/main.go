package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/drfengyu/dall-e/internal/dispatch"
	"github.com/drfengyu/dall-e/internal/infra"
	"github.com/drfengyu/dall-e/internal/storage"
	"github.com/drfengyu/dall-e/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadWorkerConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assets, err := storage.NewFileStore(cfg.AssetDir, cfg.AssetURL())
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	qwen := worker.NewQwenGenerator(worker.QwenOptions{
		APIKey:     cfg.QwenAPIKey,
		BaseURL:    cfg.QwenBaseURL,
		Model:      cfg.QwenModel,
		HTTPClient: &http.Client{Timeout: cfg.GenerateTimeout},
	})
	if cfg.QwenAPIKey == "" {
		logger.Warn().Str("model", qwen.Model()).Msg("worker: DASHSCOPE_API_KEY missing, using synthetic images")
	}

	w := worker.New(worker.Options{
		Generator: &worker.FallbackGenerator{Primary: qwen, Fallback: worker.SyntheticGenerator{}, Logger: logger},
		Assets:    assets,
		Notifier: worker.NewNotifier(worker.NotifierOptions{
			Attempts: cfg.CallbackAttempts,
			Logger:   logger,
		}),
		Logger:      logger,
		Concurrency: cfg.Concurrency,
		QueueSize:   cfg.QueueSize,
	})

	if cfg.EnableNATS {
		nc, err := dispatch.ConnectNATS(cfg.NATSURL, "dall-e-worker")
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to connect nats")
		}
		defer nc.Drain()
		if _, err := worker.NewNATSIntake(w, cfg.WorkerToken, logger).Subscribe(nc, cfg.NATSSubject); err != nil {
			logger.Fatal().Err(err).Str("subject", cfg.NATSSubject).Msg("worker: subscribe failed")
		}
		logger.Info().Str("subject", cfg.NATSSubject).Msg("worker: listening on nats")
	}

	server := infra.NewHTTPServer(cfg.HTTPConfig(), worker.NewHTTPIntake(w, cfg.WorkerToken, logger).Router(assets))
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("assets", cfg.AssetURL()).Msg("worker: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("worker: http server failed")
		}
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: failed to shutdown server")
	}
	logger.Info().Msg("worker: stopped")
}
