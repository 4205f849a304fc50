package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/drfengyu/dall-e/internal/dispatch"
	"github.com/drfengyu/dall-e/internal/http/handlers"
	httpapi "github.com/drfengyu/dall-e/internal/http/httpapi"
	"github.com/drfengyu/dall-e/internal/infra"
	"github.com/drfengyu/dall-e/internal/infra/geoip"
	"github.com/drfengyu/dall-e/internal/jobs"
	"github.com/drfengyu/dall-e/internal/middleware"
	"github.com/drfengyu/dall-e/internal/statusstore"
)

var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	reporter, err := infra.NewErrorReporter(cfg.SentryDSN, cfg.AppEnv, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init error reporting")
	}
	defer reporter.Flush(2 * time.Second)

	ctx := context.Background()
	store, err := statusstore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StatusStore).Msg("failed to open status store")
	}
	defer store.Close()

	var dispatcher dispatch.Dispatcher
	switch cfg.Dispatcher {
	case infra.DispatcherNATS:
		nc, err := dispatch.ConnectNATS(cfg.NATSURL, "dall-e-api")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer nc.Drain()
		dispatcher = dispatch.NewNATSDispatcher(nc, cfg.DispatchNATSSubject, cfg.WorkerToken, cfg.DispatchTimeout)
	default:
		dispatcher = dispatch.NewHTTPDispatcher(dispatch.HTTPOptions{
			BaseURL: cfg.ImageAPIURL,
			Token:   cfg.WorkerToken,
			Method:  cfg.DispatchMethod,
			Timeout: cfg.DispatchTimeout,
		})
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	svc := jobs.NewService(dispatcher, store, cfg.CallbackURL(), logger)
	app := handlers.NewApp(svc, logger, reporter)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		CountryLookup:  lookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.StatusStore).
			Str("dispatcher", cfg.Dispatcher).
			Str("callback_url", cfg.CallbackURL()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
