package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/config"
	"github.com/noe-create/medidhub-cpv-sub000/internal/httpapi"
	"github.com/noe-create/medidhub-cpv-sub000/internal/refresher"
	"github.com/noe-create/medidhub-cpv-sub000/internal/store/postgres"
	"github.com/noe-create/medidhub-cpv-sub000/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "queue-service").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}

	shutdownTelemetry := telemetry.Setup("queue-service", logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid database url")
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer pool.Close()

	entryStore := postgres.NewStore(pool)

	// The in-process waiting-room board polls on the slow cadence; staff
	// worklists poll the active endpoint themselves on the fast one.
	board := refresher.New(entryStore, cfg.WaitingRoomPollInterval, refresher.Options{Logger: logger})
	boardCtx, stopBoard := context.WithCancel(context.Background())
	defer stopBoard()
	go board.Run(boardCtx)

	handler := httpapi.NewHandler(entryStore, httpapi.Options{
		Board:          board,
		Logger:         logger,
		ActivePollHint: cfg.ConsultPollInterval,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	chain := httpapi.AuthMiddleware(entryStore, handler.Routes())
	chain = limiter.Middleware(chain)
	chain = httpapi.LoggingMiddleware(logger, chain)
	otelHandler := otelhttp.NewHandler(chain, "queue-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("queue-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopBoard()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
