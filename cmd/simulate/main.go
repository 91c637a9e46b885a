package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/community-payback-reconciler/internal/api"
	"github.com/hackgods/community-payback-reconciler/internal/config"
	"github.com/hackgods/community-payback-reconciler/internal/db"
)

type SimConfig struct {
	APIBaseURL       string
	Duration         time.Duration
	Workers          int
	UpdateRatio      float64
	ReconcileRatio   float64
	ReadRatio        float64
	DuplicateRatio   float64
	AppointmentLimit int
	PostgresDSN      string
}

// target is an appointment the simulator writes outcomes for. Workers share
// the current content so that concurrent PUTs frequently carry identical
// payloads and exercise deduplication.
type target struct {
	AppointmentID int64
	CRN           string
	StartTime     time.Time
	EndTime       time.Time

	mu      sync.Mutex
	current api.OutcomeUpdate
}

func (t *target) next(rng *rand.Rand, duplicate bool) api.OutcomeUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !duplicate || t.current.ContactOutcomeID == uuid.Nil {
		notes := fmt.Sprintf("sim revision %d", rng.Intn(1_000_000))
		penalty := int64(rng.Intn(4) * 15)
		t.current = api.OutcomeUpdate{
			AppointmentID:         t.AppointmentID,
			ProjectTypeID:         1,
			StartTime:             t.StartTime,
			EndTime:               t.EndTime,
			ContactOutcomeID:      uuid.MustParse("0b5f2a4e-8a9f-4d7b-9c5e-7f0e1b2c3d4e"),
			SupervisorTeamID:      7,
			SupervisorOfficerCode: "N56SIM1",
			Notes:                 &notes,
			PenaltyMinutes:        &penalty,
		}
	}
	return t.current
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

func (om *OperationMetrics) Stats() (avg, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), pct(99)
}

type Metrics struct {
	Update    OperationMetrics
	History   OperationMetrics
	Reconcile OperationMetrics
}

type Simulator struct {
	config  SimConfig
	targets []*target
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d update=%.2f reconcile=%.2f read=%.2f duplicate=%.2f",
		cfg.Duration, cfg.Workers, cfg.UpdateRatio, cfg.ReconcileRatio, cfg.ReadRatio, cfg.DuplicateRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	targets, err := loadTargets(ctx, pgPool, cfg.AppointmentLimit)
	if err != nil {
		log.Fatalf("load appointments: %v", err)
	}
	log.Printf("loaded %d appointments", len(targets))

	sim := &Simulator{
		config:  cfg,
		targets: targets,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if err := checkHistories(context.Background(), pgPool, targets); err != nil {
		log.Fatalf("history check failed: %v", err)
	}
	log.Println("history check passed: no consecutive duplicate outcomes")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:       getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:         getDuration("SIM_DURATION", 30*time.Second),
		Workers:          getInt("SIM_WORKERS", 10),
		UpdateRatio:      getFloat("SIM_UPDATE_RATIO", 0.6),
		ReconcileRatio:   getFloat("SIM_RECONCILE_RATIO", 0.1),
		ReadRatio:        getFloat("SIM_READ_RATIO", 0.3),
		DuplicateRatio:   getFloat("SIM_DUPLICATE_RATIO", 0.7),
		AppointmentLimit: getInt("SIM_APPOINTMENT_LIMIT", 50),
		PostgresDSN:      baseCfg.PostgresDSN,
	}

	total := cfg.UpdateRatio + cfg.ReconcileRatio + cfg.ReadRatio
	if total > 0 {
		cfg.UpdateRatio /= total
		cfg.ReconcileRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadTargets(ctx context.Context, pool *pgxpool.Pool, limit int) ([]*target, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, crn, start_time, end_time
		FROM community_payback_appointments
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	targets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*target, error) {
		t := &target{}
		err := row.Scan(&t.AppointmentID, &t.CRN, &t.StartTime, &t.EndTime)
		return t, err
	})
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no appointments found, run cmd/seed first")
	}
	return targets, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		t := s.targets[rng.Intn(len(s.targets))]

		r := rng.Float64()
		switch {
		case r < s.config.UpdateRatio:
			s.doUpdate(ctx, t, t.next(rng, rng.Float64() < s.config.DuplicateRatio))
		case r < s.config.UpdateRatio+s.config.ReconcileRatio:
			s.doReconcile(ctx, t)
		default:
			s.doHistory(ctx, t)
		}
	}
}

func (s *Simulator) doUpdate(ctx context.Context, t *target, update api.OutcomeUpdate) {
	body, _ := json.Marshal(api.OutcomeUpdateRequest{Outcomes: []api.OutcomeUpdate{update}})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, s.config.APIBaseURL+"/appointments/outcomes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	status, latency, ok := s.do(req)
	if ok {
		s.metrics.Update.Record(latency, status == http.StatusNoContent, status == http.StatusConflict)
	}
}

func (s *Simulator) doReconcile(ctx context.Context, t *target) {
	body, _ := json.Marshal(api.ReconcileRequest{TriggerType: "AppointmentChange", AppointmentID: &t.AppointmentID})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/scheduling/%s/reconcile", s.config.APIBaseURL, t.CRN), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	status, latency, ok := s.do(req)
	if ok {
		s.metrics.Reconcile.Record(latency, status == http.StatusOK, false)
	}
}

func (s *Simulator) doHistory(ctx context.Context, t *target) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/%d/outcomes", s.config.APIBaseURL, t.AppointmentID), nil)

	status, latency, ok := s.do(req)
	if ok {
		s.metrics.History.Record(latency, status == http.StatusOK, false)
	}
}

// do returns ok=false when the run deadline cut the request short, so those
// are not counted as errors.
func (s *Simulator) do(req *http.Request) (int, time.Duration, bool) {
	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		if req.Context().Err() != nil {
			return 0, latency, false
		}
		return 0, latency, true
	}
	defer resp.Body.Close()
	return resp.StatusCode, latency, true
}

// checkHistories fails if any appointment has two adjacent records with the
// same content, which would mean a duplicate slipped past the lock.
func checkHistories(ctx context.Context, pool *pgxpool.Pool, targets []*target) error {
	for _, t := range targets {
		rows, err := pool.Query(ctx, `
			SELECT notes, penalty_minutes
			FROM appointment_outcomes
			WHERE appointment_id = $1
			ORDER BY created_at, seq
		`, t.AppointmentID)
		if err != nil {
			return err
		}

		var prev string
		i := 0
		for rows.Next() {
			var (
				notes   *string
				penalty *int64
			)
			if err := rows.Scan(&notes, &penalty); err != nil {
				rows.Close()
				return err
			}
			key := fmt.Sprintf("%v|%v", deref(notes), deref(penalty))
			if i > 0 && key == prev {
				rows.Close()
				return fmt.Errorf("appointment %d: records %d and %d are identical", t.AppointmentID, i-1, i)
			}
			prev = key
			i++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Appointments: %d\n", len(s.targets))
	fmt.Println()

	printOperationReport("Outcome update", &s.metrics.Update)
	printOperationReport("Outcome history", &s.metrics.History)
	printOperationReport("Reconcile", &s.metrics.Reconcile)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Lock conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
