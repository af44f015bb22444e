package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

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
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operate the clinic scheduling database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(generateSlotsCmd())
	rootCmd.AddCommand(nextDatesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env holds what every subcommand needs once config and Postgres are up.
type env struct {
	cfg       config.Config
	pool      *pgxpool.Pool
	validator *schedule.Validator
	clinics   *clinic.Service
	slots     *slots.Service
}

func open(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init("clinicctl", cfg.Env)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, err
	}

	qc := cache.New(time.Minute, 0)
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts

	v := schedule.NewValidator(loc)
	clinics := clinic.NewService(clinic.NewPgRepository(pool), v, qc, rc)
	return &env{
		cfg:       cfg,
		pool:      pool,
		validator: v,
		clinics:   clinics,
		slots:     slots.NewService(slots.NewPgStore(pool, cfg.SlotBatchSize), clinics, qc, rc, nil),
	}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			applied, err := db.Migrate(ctx, e.pool)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			for _, v := range applied {
				fmt.Printf("applied %s\n", v)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", len(applied))
			return nil
		},
	}
}

func generateSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-slots",
		Short: "Materialize empty slots for one doctor or every active doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinicRaw, _ := cmd.Flags().GetString("clinic")
			doctorRaw, _ := cmd.Flags().GetString("doctor")
			fromRaw, _ := cmd.Flags().GetString("from")
			days, _ := cmd.Flags().GetInt("days")

			ctx := log.Logger.WithContext(cmd.Context())
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			if doctorRaw == "" {
				if days <= 0 {
					days = e.cfg.SlotHorizonDays
				}
				sum, err := worker.NewSlotWorker(e.clinics, e.slots, days, e.validator.Today).RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("doctors=%d generated=%d inserted=%d failed=%d\n", sum.Doctors, sum.Generated, sum.Inserted, sum.Failed)
				return nil
			}

			clinicID, doctorID, err := ids(clinicRaw, doctorRaw)
			if err != nil {
				return err
			}
			from, err := dateOrToday(e.validator, fromRaw)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = e.cfg.SlotHorizonDays
			}

			res, err := e.slots.GenerateForDoctor(ctx, clinicID, doctorID, from, from.AddDate(0, 0, days))
			if err != nil {
				return err
			}
			fmt.Printf("generated=%d inserted=%d\n", res.Generated, res.Inserted)
			return nil
		},
	}
	cmd.Flags().String("clinic", "", "Clinic ID (required with --doctor)")
	cmd.Flags().String("doctor", "", "Doctor ID; every active doctor when empty")
	cmd.Flags().String("from", "", "First date, YYYY-MM-DD (default today)")
	cmd.Flags().Int("days", 0, "Days ahead to generate (default SLOT_HORIZON_DAYS)")
	return cmd
}

func nextDatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-dates",
		Short: "List a doctor's next bookable dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinicRaw, _ := cmd.Flags().GetString("clinic")
			doctorRaw, _ := cmd.Flags().GetString("doctor")
			fromRaw, _ := cmd.Flags().GetString("from")
			n, _ := cmd.Flags().GetInt("n")

			clinicID, doctorID, err := ids(clinicRaw, doctorRaw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			from, err := dateOrToday(e.validator, fromRaw)
			if err != nil {
				return err
			}

			dates, err := e.clinics.NextDates(ctx, clinicID, doctorID, from, n)
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Printf("%s %s\n", d.Format(schedule.DateLayout), d.Weekday())
			}
			return nil
		},
	}
	cmd.Flags().String("clinic", "", "Clinic ID")
	cmd.Flags().String("doctor", "", "Doctor ID")
	cmd.Flags().String("from", "", "Search start, YYYY-MM-DD (default today)")
	cmd.Flags().Int("n", 5, "How many dates to list")
	_ = cmd.MarkFlagRequired("clinic")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func ids(clinicRaw, doctorRaw string) (uuid.UUID, uuid.UUID, error) {
	clinicID, err := uuid.Parse(clinicRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --clinic: %w", err)
	}
	doctorID, err := uuid.Parse(doctorRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --doctor: %w", err)
	}
	return clinicID, doctorID, nil
}

func dateOrToday(v *schedule.Validator, raw string) (time.Time, error) {
	if raw == "" {
		return v.Today(), nil
	}
	d, err := v.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return d, nil
}
