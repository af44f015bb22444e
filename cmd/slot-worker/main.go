package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
	"github.com/hackgods/clinic-scheduling/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("slot-worker", cfg.Env)
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Int("horizon_days", cfg.SlotHorizonDays).
		Msg("slot-worker starting up")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid clinic timezone")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = log.Logger.WithContext(rootCtx)

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Every run reads fresh configs, so the cache only spans one run
	qc := cache.New(cfg.WorkerInterval/2, 0)
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts

	validator := schedule.NewValidator(loc)
	clinics := clinic.NewService(clinic.NewPgRepository(pgPool), validator, qc, rc)
	slotSvc := slots.NewService(slots.NewPgStore(pgPool, cfg.SlotBatchSize), clinics, qc, rc, nil)

	w := worker.NewSlotWorker(clinics, slotSvc, cfg.SlotHorizonDays, validator.Today)
	w.Run(rootCtx, cfg.WorkerInterval)

	qc.Wait()
	log.Info().Msg("slot-worker stopped")
}
