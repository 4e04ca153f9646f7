package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/config"
	"github.com/carebook/hospital-scheduling/internal/db"
	"github.com/carebook/hospital-scheduling/internal/schedule"
)

// The replenish worker keeps every staff member's slot coverage ahead
// of the look-ahead horizon so patients always see bookable days.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "replenish-worker").Logger()
	log.Info().Msg("replenish-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("running replenish worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	repo := schedule.NewPgRepository(pgPool)
	generator := schedule.NewGenerator(repo, schedule.GeneratorConfig{
		WindowStartHour: cfg.WindowStartHour,
		WindowHours:     cfg.WindowHours,
		DefaultCapacity: cfg.DefaultCapacity,
		HorizonDays:     cfg.HorizonDays,
		ReplenishWeeks:  cfg.ReplenishWeeks,
	}, log)

	// Run once at startup
	runOnce(rootCtx, repo, generator, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping replenish worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, generator, log)
		}
	}
}

func runOnce(ctx context.Context, repo *schedule.PgRepository, generator *schedule.Generator, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()

	staff, err := repo.ListStaff(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("list staff for replenishment")
		return
	}

	total := 0
	for _, st := range staff {
		inserted, err := generator.EnsureCoverage(runCtx, st.ID, time.Now(), st.DefaultCapacity)
		if err != nil {
			log.Error().Err(err).Stringer("staff_id", st.ID).Msg("replenish failed for staff member")
			continue
		}
		total += inserted
	}

	log.Info().
		Int("staff", len(staff)).
		Int("inserted", total).
		Dur("took", time.Since(start)).
		Msg("replenish run complete")
}
