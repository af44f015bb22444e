package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
	"github.com/hackgods/clinic-scheduling/internal/waitlist"
)

const (
	doctorCount   = 12
	waitlistCount = 40
)

var specialties = []string{
	"Radiology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Gynecology",
	"Pediatrics",
}

var exams = []struct {
	name     string
	duration int
}{
	{"Abdominal Ultrasound", 30},
	{"Pelvic Ultrasound", 30},
	{"Transvaginal Ultrasound", 30},
	{"Echocardiogram", 40},
	{"Electrocardiogram", 15},
	{"Mammography", 20},
	{"Bone Densitometry", 20},
	{"Consultation", 30},
}

var plans = []string{"Unimed", "Bradesco Saude", "SulAmerica", "Amil"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("seed", cfg.Env)
	log.Info().Msg("seed starting")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid clinic timezone")
	}

	ctx := log.Logger.WithContext(context.Background())

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	// 0 picks a random seed
	gofakeit.Seed(0)

	repo := clinic.NewPgRepository(pool)
	validator := schedule.NewValidator(loc)
	clinics := clinic.NewService(repo, validator, cache.New(time.Minute, 0), retry.DefaultConfig())

	c := &clinic.Clinic{Name: gofakeit.Company() + " Diagnostics", Timezone: cfg.Timezone}
	if err := repo.CreateClinic(ctx, c); err != nil {
		log.Fatal().Err(err).Msg("create clinic")
	}
	log.Info().Str("clinic_id", c.ID.String()).Str("name", c.Name).Msg("clinic created")

	for _, e := range exams {
		if err := repo.CreateExam(ctx, &clinic.Exam{ClinicID: c.ID, Name: e.name, DurationMinutes: e.duration}); err != nil {
			log.Fatal().Err(err).Str("exam", e.name).Msg("create exam")
		}
	}
	log.Info().Int("count", len(exams)).Msg("exams seeded")

	doctors, err := seedDoctors(ctx, clinics, c.ID, doctorCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}

	waiting := waitlist.NewService(waitlist.NewPgRepository(pool), nil, loc)
	if err := seedWaitlist(ctx, waiting, c.ID, doctors, waitlistCount); err != nil {
		log.Fatal().Err(err).Msg("seed waiting list")
	}

	fmt.Printf("clinic_id=%s\n", c.ID)
	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, clinics *clinic.Service, clinicID uuid.UUID, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	ids := make([]uuid.UUID, 0, count)
	for range count {
		hours, configs := randomWeek()
		specialty := gofakeit.RandomString(specialties)
		in := clinic.DoctorInput{
			Name:          "Dr. " + gofakeit.Name(),
			Specialty:     &specialty,
			WorkingHours:  hours,
			SlotConfigs:   configs,
			AcceptedPlans: pick(plans, 2),
			IntervalRules: []rules.IntervalRule{{
				Name:         "ultrasound interval",
				OriginExams:  []string{"transvaginal"},
				BlockedExams: []string{"pelvic"},
				MinDays:      30,
			}},
			InsuranceRules: []rules.InsuranceRule{{
				Plan:    plans[0],
				Kind:    rules.KindWarn,
				Exams:   []string{"mammography"},
				Message: "bring the plan authorization printout",
			}},
		}
		if gofakeit.Bool() {
			minAge := 18
			in.MinAge = &minAge
		}

		d, err := clinics.CreateDoctor(ctx, clinicID, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}

	log.Info().Int("count", len(ids)).Msg("doctors seeded")
	return ids, nil
}

// randomWeek builds a morning or afternoon shift on three to five weekdays
// with matching hourly slot configs.
func randomWeek() (schedule.WorkingHours, []slots.Config) {
	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	hours := schedule.WorkingHours{}
	var configs []slots.Config

	for _, day := range pick(days, gofakeit.Number(3, 5)) {
		start, end, period := 8, 12, waitlist.PeriodMorning
		if gofakeit.Bool() {
			start, end, period = 13, 18, waitlist.PeriodAfternoon
		}
		for h := start; h < end; h++ {
			hours[day] = append(hours[day], fmt.Sprintf("%02d:00", h))
		}
		configs = append(configs, slots.Config{
			Weekday:     day,
			Start:       fmt.Sprintf("%02d:00", start),
			End:         fmt.Sprintf("%02d:00", end),
			Granularity: 60,
			Period:      period,
		})
	}
	return hours, configs
}

func seedWaitlist(ctx context.Context, svc *waitlist.Service, clinicID uuid.UUID, doctors []uuid.UUID, count int) error {
	log.Info().Int("count", count).Msg("seeding waiting list")

	for range count {
		in := waitlist.AddInput{
			PatientName:  gofakeit.Name(),
			PatientPhone: fmt.Sprintf("11%09d", gofakeit.Number(900000000, 999999999)),
			DoctorID:     doctors[gofakeit.Number(0, len(doctors)-1)],
			Priority:     gofakeit.Number(0, 10),
		}
		if gofakeit.Bool() {
			in.PreferredPeriod = gofakeit.RandomString([]string{waitlist.PeriodMorning, waitlist.PeriodAfternoon})
		}
		if _, err := svc.Add(ctx, clinicID, in); err != nil {
			return err
		}
	}

	log.Info().Int("count", count).Msg("waiting list seeded")
	return nil
}

func pick(from []string, n int) []string {
	shuffled := append([]string(nil), from...)
	gofakeit.ShuffleStrings(shuffled)
	return shuffled[:min(n, len(shuffled))]
}
