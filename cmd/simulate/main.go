package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/pediatric-clinic-booking/internal/api"
	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/config"
	"github.com/hackgods/pediatric-clinic-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Secret        string
	GuardianLimit int
	ReadRatio     float64
	PostgresDSN   string
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
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Login       OperationMetrics
	Step        OperationMetrics
	Flow        OperationMetrics
	ListHistory OperationMetrics
}

type Simulator struct {
	config  SimConfig
	phones  []string
	client  *http.Client
	metrics Metrics
}

// errSlotLost marks a flow that reached the commit but lost the slot, or
// that was told its conversation was busy.
var errSlotLost = errors.New("slot lost")

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d read=%.2f", cfg.Duration, cfg.Workers, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	phones, err := loadPhones(ctx, pgPool, cfg.GuardianLimit)
	if err != nil {
		log.Fatalf("load guardians: %v", err)
	}
	log.Printf("loaded: %d guardians", len(phones))

	sim := &Simulator{
		config: cfg,
		phones: phones,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Secret:        getEnv("SEED_SECRET", "secret"),
		GuardianLimit: getInt("SIM_GUARDIAN_LIMIT", 500),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.2),
		PostgresDSN:   baseCfg.PostgresDSN,
	}
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
	if cfg.ReadRatio < 0 || cfg.ReadRatio > 1 {
		return fmt.Errorf("SIM_READ_RATIO must be within [0, 1]")
	}
	return nil
}

func loadPhones(ctx context.Context, pool *pgxpool.Pool, limit int) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT g.phone FROM guardians g
		WHERE EXISTS (SELECT 1 FROM guardian_children gc WHERE gc.guardian_id = g.id)
		ORDER BY g.phone
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		phones = append(phones, phone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(phones) == 0 {
		return nil, fmt.Errorf("no guardians with children, run cmd/seed first")
	}
	return phones, nil
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
	phone := s.phones[workerID%len(s.phones)]

	token, err := s.login(ctx, phone)
	if err != nil {
		log.Printf("worker %d: login %s: %v", workerID, phone, err)
		return
	}

	// Each worker keeps its own booking session so two workers signed in as
	// the same guardian do not share a conversation.
	sessionID := fmt.Sprintf("sim-%d", workerID)

	for ctx.Err() == nil {
		if rng.Float64() < s.config.ReadRatio {
			s.doListHistory(ctx, token)
			continue
		}
		s.doBookingFlow(ctx, rng, token, sessionID)
	}
}

func (s *Simulator) login(ctx context.Context, phone string) (string, error) {
	body, _ := json.Marshal(api.LoginRequest{Phone: phone, Secret: s.config.Secret})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Login.Record(latency, false, false)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.Login.Record(latency, false, resp.StatusCode == http.StatusTooManyRequests)
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out api.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.metrics.Login.Record(latency, false, false)
		return "", err
	}
	s.metrics.Login.Record(latency, true, false)
	return out.Token, nil
}

// step posts one booking step and returns the next prompt.
func (s *Simulator) step(ctx context.Context, token, sessionID, path string, in api.StepRequest) (booking.Prompt, error) {
	body, _ := json.Marshal(in)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/booking/"+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Booking-Session", sessionID)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Step.Record(latency, false, false)
		return booking.Prompt{}, err
	}
	defer resp.Body.Close()

	var out api.ConversationResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode == http.StatusOK && decodeErr == nil:
		s.metrics.Step.Record(latency, true, false)
		return out.Prompt, nil
	case resp.StatusCode == http.StatusConflict,
		out.Prompt.Kind == booking.PromptBookingFailed:
		s.metrics.Step.Record(latency, false, true)
		return out.Prompt, errSlotLost
	}
	s.metrics.Step.Record(latency, false, false)
	if decodeErr != nil {
		return booking.Prompt{}, decodeErr
	}
	return out.Prompt, fmt.Errorf("%s: status %d", path, resp.StatusCode)
}

func (s *Simulator) doBookingFlow(ctx context.Context, rng *rand.Rand, token, sessionID string) {
	start := time.Now()
	err := s.runFlow(ctx, rng, token, sessionID)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Flow.Record(time.Since(start), err == nil, errors.Is(err, errSlotLost))
}

func (s *Simulator) runFlow(ctx context.Context, rng *rand.Rand, token, sessionID string) error {
	prompt, err := s.step(ctx, token, sessionID, "begin", api.StepRequest{})
	if err != nil {
		return err
	}
	if prompt.Kind != booking.PromptChooseChild {
		return fmt.Errorf("begin: unexpected prompt %s", prompt.Kind)
	}

	prompt, err = s.step(ctx, token, sessionID, "child", api.StepRequest{ChildID: pick(rng, prompt.Options)})
	if err != nil {
		return err
	}
	prompt, err = s.step(ctx, token, sessionID, "type", api.StepRequest{VisitType: pick(rng, prompt.Options)})
	if err != nil {
		return err
	}

	// Walk the offered dates until one has free times.
	dates := prompt.Options
	rng.Shuffle(len(dates), func(i, j int) { dates[i], dates[j] = dates[j], dates[i] })
	for _, d := range dates {
		prompt, err = s.step(ctx, token, sessionID, "date", api.StepRequest{Date: d.Value})
		if err == nil && prompt.Kind == booking.PromptChooseTime {
			break
		}
		if errors.Is(err, errSlotLost) {
			return err
		}
	}
	if prompt.Kind != booking.PromptChooseTime {
		_, _ = s.step(ctx, token, sessionID, "cancel", api.StepRequest{})
		return fmt.Errorf("no free dates")
	}

	prompt, err = s.step(ctx, token, sessionID, "time", api.StepRequest{Time: pick(rng, prompt.Options)})
	if err != nil {
		return err
	}
	if prompt.Kind != booking.PromptConfirmed {
		return fmt.Errorf("time: unexpected prompt %s", prompt.Kind)
	}
	return nil
}

func pick(rng *rand.Rand, opts []booking.Option) string {
	if len(opts) == 0 {
		return ""
	}
	return opts[rng.Intn(len(opts))].Value
}

func (s *Simulator) doListHistory(ctx context.Context, token string) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/me/appointments?limit=20", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListHistory.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Login", &s.metrics.Login)
	printOperationReport("Booking step", &s.metrics.Step)
	printOperationReport("Full booking flow", &s.metrics.Flow)
	printOperationReport("List history", &s.metrics.ListHistory)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
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
