package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string        `envconfig:"SIM_API_BASE_URL" default:"http://localhost:8080"`
	Duration     time.Duration `envconfig:"SIM_DURATION" default:"30s"`
	Workers      int           `envconfig:"SIM_WORKERS" default:"10"`
	RaceSize     int           `envconfig:"SIM_RACE_SIZE" default:"50"` // concurrent submissions for one slot
	BookingRatio float64       `envconfig:"SIM_BOOKING_RATIO" default:"0.5"`
	CancelRatio  float64       `envconfig:"SIM_CANCEL_RATIO" default:"0.1"`
	ConfirmRatio float64       `envconfig:"SIM_CONFIRM_RATIO" default:"0.1"`
	ReadRatio    float64       `envconfig:"SIM_READ_RATIO" default:"0.3"`
	SlotLimit    int           `envconfig:"SIM_SLOT_LIMIT" default:"2000"`
}

// target is one materialized empty slot the simulator can try to book.
type target struct {
	ClinicID uuid.UUID
	DoctorID uuid.UUID
	ExamID   uuid.UUID
	Date     string
	Time     string
}

type DataPool struct {
	Targets      []target
	mu           sync.RWMutex
	appointments []booked
}

type booked struct {
	ClinicID uuid.UUID
	ID       uuid.UUID
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.IntN(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Race    OperationMetrics
	Booking OperationMetrics
	Confirm OperationMetrics
	Cancel  OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	base, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("simulate", base.Env)

	var cfg SimConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid simulator config")
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.RaceSize <= 1 {
		log.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be > 0, SIM_RACE_SIZE > 1")
	}
	normalize(&cfg)

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("race_size", cfg.RaceSize).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, base.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg.SlotLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("slots", len(dataPool.Targets)).Msg("data pool loaded")

	gofakeit.Seed(0)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	winners := sim.Race(context.Background(), dataPool.Targets[0])
	sim.Run()
	sim.PrintReport(winners)

	if winners != 1 {
		os.Exit(1)
	}
}

func normalize(cfg *SimConfig) {
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total <= 0 {
		return
	}
	cfg.BookingRatio /= total
	cfg.CancelRatio /= total
	cfg.ConfirmRatio /= total
	cfg.ReadRatio /= total
}

// loadDataPool picks available future slots of active doctors together with
// one exam of each clinic.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, limit int) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT s.clinic_id, s.doctor_id, e.id, to_char(s.slot_date, 'YYYY-MM-DD'), s.slot_time
		FROM empty_slots s
		JOIN doctors d ON d.id = s.doctor_id AND d.active
		JOIN LATERAL (
			SELECT id FROM exams WHERE clinic_id = s.clinic_id ORDER BY name LIMIT 1
		) e ON true
		WHERE s.status = 'available' AND s.slot_date > current_date
		ORDER BY random()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.ClinicID, &t.DoctorID, &t.ExamID, &t.Date, &t.Time); err != nil {
			return nil, err
		}
		dataPool.Targets = append(dataPool.Targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no available slots, run seed and slot-worker first")
	}
	return dataPool, nil
}

// Race submits RaceSize bookings for the same slot at once and returns how
// many succeeded.
func (s *Simulator) Race(ctx context.Context, t target) int {
	log.Info().
		Str("doctor_id", t.DoctorID.String()).
		Str("date", t.Date).
		Str("time", t.Time).
		Int("submissions", s.config.RaceSize).
		Msg("racing one slot")

	var winners atomic.Int64
	start := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	for range s.config.RaceSize {
		g.Go(func() error {
			<-start
			status, out, latency, err := s.book(gctx, t)
			if err != nil {
				s.metrics.Race.Record(latency, false, false)
				return nil
			}
			ok := status == http.StatusCreated
			if ok {
				winners.Add(1)
				s.pool.AddAppointment(booked{ClinicID: t.ClinicID, ID: *out.AppointmentID})
			}
			s.metrics.Race.Record(latency, ok, status == http.StatusConflict)
			return nil
		})
	}
	close(start)
	_ = g.Wait()

	return int(winners.Load())
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting load phase")

	g, gctx := errgroup.WithContext(ctx)
	for i := range s.config.Workers {
		g.Go(func() error {
			s.worker(gctx, uint64(i))
			return nil
		})
	}
	_ = g.Wait()

	log.Info().Msg("load phase complete")
}

func (s *Simulator) worker(ctx context.Context, id uint64) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), id))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.CancelRatio:
			s.doStatus(ctx, rng, "cancel", &s.metrics.Cancel)
		case r < c.BookingRatio+c.CancelRatio+c.ConfirmRatio:
			s.doStatus(ctx, rng, "confirm", &s.metrics.Confirm)
		default:
			s.doList(ctx, rng)
		}
	}
}

func (s *Simulator) book(ctx context.Context, t target) (int, appointment.Outcome, time.Duration, error) {
	form := appointment.BookingForm{
		DoctorID:     t.DoctorID,
		ExamID:       t.ExamID,
		Date:         t.Date,
		Time:         t.Time,
		PatientName:  gofakeit.Name(),
		PatientPhone: fmt.Sprintf("11%09d", gofakeit.Number(900000000, 999999999)),
		CreatedBy:    "simulator",
	}
	body, _ := json.Marshal(form)

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments", t.ClinicID, body)
	latency := time.Since(start)
	if err != nil {
		return 0, appointment.Outcome{}, latency, err
	}
	defer resp.Body.Close()

	var out appointment.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, out, latency, err
	}
	return resp.StatusCode, out, latency, nil
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.IntN(len(s.pool.Targets))]

	status, out, latency, err := s.book(ctx, t)
	if ctx.Err() != nil {
		return
	}
	success := err == nil && status == http.StatusCreated
	if success && out.AppointmentID != nil {
		s.pool.AddAppointment(booked{ClinicID: t.ClinicID, ID: *out.AppointmentID})
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doStatus(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", b.ID, action), b.ClinicID, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}
	om.Record(latency, success, conflict)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.IntN(len(s.pool.Targets))]

	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?doctor_id=%s&date=%s&limit=20", t.DoctorID, t.Date), t.ClinicID, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) do(ctx context.Context, method, path string, clinicID uuid.UUID, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinic-ID", clinicID.String())
	return s.client.Do(req)
}

func (s *Simulator) PrintReport(winners int) {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	verdict := "PASS"
	if winners != 1 {
		verdict = "FAIL"
	}
	fmt.Printf("Same-slot race: %d submissions, %d succeeded [%s]\n\n", s.config.RaceSize, winners, verdict)

	printOperationReport("Race", &s.metrics.Race)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
