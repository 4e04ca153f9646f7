package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/api"
	"github.com/carebook/hospital-scheduling/internal/config"
	"github.com/carebook/hospital-scheduling/internal/db"
	"github.com/carebook/hospital-scheduling/internal/identity"
	redisclient "github.com/carebook/hospital-scheduling/internal/redis"
	"github.com/carebook/hospital-scheduling/internal/schedule"
)

const version = "1.0.0"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := schedule.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	ledger := schedule.NewLedger(repo, log)
	generator := schedule.NewGenerator(repo, schedule.GeneratorConfig{
		WindowStartHour: cfg.WindowStartHour,
		WindowHours:     cfg.WindowHours,
		DefaultCapacity: cfg.DefaultCapacity,
		HorizonDays:     cfg.HorizonDays,
		ReplenishWeeks:  cfg.ReplenishWeeks,
	}, log)
	payments := schedule.NewPgPaymentVerifier(pgPool)
	coordinator := schedule.NewCoordinator(repo, ledger, payments, locker, log)
	adjuster := schedule.NewAdjuster(repo, ledger, generator, locker, log)
	scorer := schedule.NewScorer(repo, cfg.RecommendationLimit, log)

	router := api.NewRouter(api.RouterConfig{
		Repo:            repo,
		Generator:       generator,
		Coordinator:     coordinator,
		Adjuster:        adjuster,
		Scorer:          scorer,
		Identity:        identity.ContextProvider{},
		PgPool:          pgPool,
		Redis:           rdb,
		Env:             cfg.Env,
		Version:         version,
		DefaultCapacity: cfg.DefaultCapacity,
		Log:             log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
