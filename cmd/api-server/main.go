package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
	"github.com/hackgods/clinic-scheduling/internal/waitlist"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("api-server", cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid clinic timezone")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = log.Logger.WithContext(rootCtx)

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 20})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool)
	if err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("migrations applied")
	}

	// Connect Redis. Without it the slot lock falls back to this process
	// only and the partial unique index keeps bookings correct.
	var (
		locker      redisclient.Locker
		redisPinger api.Pinger
	)
	rdb, err := redisclient.Connect(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process slot lock")
		locker = redisclient.NewLocalSlotLocker()
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		redisPinger = api.RedisPinger{Client: rdb}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	qc := cache.New(cfg.CacheTTL, cfg.CacheStale, cache.WithObserver(m.ObserveCache))
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts

	validator := schedule.NewValidator(loc)

	clinics := clinic.NewService(clinic.NewPgRepository(pgPool), validator, qc, rc)
	slotSvc := slots.NewService(slots.NewPgStore(pgPool, cfg.SlotBatchSize), clinics, qc, rc, m)

	dispatcher := notify.NewDispatcher(whatsAppSender(cfg), emailSender(cfg), m, cfg.WhatsApp.CountryCode)
	waiting := waitlist.NewService(waitlist.NewPgRepository(pgPool), dispatcher, loc)

	appts := appointment.NewService(appointment.NewPgRepository(pgPool), clinics, locker, validator, appointment.Options{
		MinLeadTime: cfg.MinLeadTime,
		Retry:       rc,
	}).
		WithNotifier(dispatcher).
		WithWaitlist(waiting).
		WithSlotCache(slotSvc).
		WithMetrics(m)

	router := api.NewRouter(api.RouterConfig{
		Appointments:   appts,
		Clinics:        clinics,
		Slots:          slotSvc,
		Waitlist:       waiting,
		Schedule:       validator,
		Postgres:       pgPool,
		Redis:          redisPinger,
		Gatherer:       reg,
		BookingLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
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
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// Let queued notifications and cache refreshes finish before the pool closes
	appts.Drain()
	qc.Wait()

	log.Info().Msg("api-server stopped")
}

func whatsAppSender(cfg config.Config) notify.TextSender {
	if !cfg.WhatsApp.Enabled() {
		log.Info().Msg("whatsapp notifications disabled")
		return nil
	}
	s, err := notify.NewWhatsAppSender(cfg.WhatsApp, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("whatsapp sender error")
	}
	return s
}

func emailSender(cfg config.Config) notify.MailSender {
	if !cfg.SMTP.Enabled() {
		log.Info().Msg("email notifications disabled")
		return nil
	}
	s, err := notify.NewEmailSender(cfg.SMTP)
	if err != nil {
		log.Fatal().Err(err).Msg("email sender error")
	}
	return s
}
