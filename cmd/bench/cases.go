// README: Scenario cases for the dispatch API; environment, booking lifecycle, offer, concurrency and perf checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	// leave the bench driver offline so later runs start clean
	_, _, _ = r.call(ctx, http.MethodPost, "/api/drivers/offline", r.cfg.DriverToken, nil)

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	cfg := r.cfg
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "counters and audit log reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "position cache and sweep lock reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables named in the migration exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass}
			},
		},

		httpCase("API: health", http.MethodGet, "/health", "", nil, http.StatusOK),
		httpCase("Auth: missing token -> 401", http.MethodGet, "/api/drivers/me", "", nil, http.StatusUnauthorized),
		httpCase("Auth: passenger on driver route -> 403", http.MethodGet, "/api/drivers/me", cfg.PassengerToken, nil, http.StatusForbidden),

		// Setup
		httpCase("Operator: enable auto dispatch", http.MethodPut, "/api/operators/"+cfg.OperatorID+"/settings", cfg.AdminToken, map[string]any{
			"dispatch_mode":                     "auto",
			"auto_dispatch_enabled":             true,
			"max_auto_accept_wait_time_minutes": 30,
		}, http.StatusOK),
		httpCase("Driver: go online", http.MethodPost, "/api/drivers/online", cfg.DriverToken, map[string]any{
			"name":            "Bench Driver",
			"operator_code":   cfg.OperatorID,
			"vehicle_details": "Silver Octavia",
			"lat":             51.501,
			"lng":             -0.125,
		}, http.StatusOK),
		httpCase("Driver: invalid coords -> 400", http.MethodPut, "/api/drivers/location", cfg.DriverToken, map[string]any{
			"lat": 123.0,
			"lng": 456.0,
		}, http.StatusBadRequest),
		httpCase("Booking: no operator -> 400", http.MethodPost, "/api/bookings", cfg.PassengerToken, map[string]any{
			"pickup":  map[string]any{"lat": 51.5007, "lng": -0.1246},
			"dropoff": map[string]any{"lat": 51.5033, "lng": -0.1195},
		}, http.StatusBadRequest),
		httpCase("Booking: pickup without coords -> 400", http.MethodPost, "/api/bookings", cfg.PassengerToken, map[string]any{
			"operator_id": cfg.OperatorID,
			"pickup":      map[string]any{"address": "Westminster"},
			"dropoff":     map[string]any{"lat": 51.5033, "lng": -0.1195},
		}, http.StatusBadRequest),

		// Ride lifecycle
		{
			Name:  "Ride: offer, accept, arrive, start, complete",
			Focus: "full lifecycle with automatic assignment",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				id, offerID, res := r.assignedBooking(ctx)
				if res != nil {
					return *res
				}
				code, o, err := r.call(ctx, http.MethodGet, "/api/offers/"+offerID, r.cfg.DriverToken, nil)
				if err != nil || code != http.StatusOK {
					return failStatus("get offer", code, err)
				}
				if rem, _ := o["remaining_seconds"].(float64); rem <= 0 || rem > r.cfg.OfferWindow.Seconds() {
					return Result{Status: StatusFail, Note: fmt.Sprintf("remaining_seconds=%v", o["remaining_seconds"])}
				}
				for _, step := range []string{"accept", "arrive", "start", "complete"} {
					code, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/"+step, r.cfg.DriverToken, nil)
					if err != nil || code != http.StatusOK {
						return failStatus(step, code, err)
					}
				}
				code, _, err = r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/arrive", r.cfg.DriverToken, nil)
				if err != nil || code != http.StatusConflict {
					return failStatus("arrive after complete", code, err)
				}
				return Result{Status: StatusPass, Latency: time.Since(start), Note: "booking=" + id}
			},
		},
		{
			Name:  "Cancel: passenger cancel, then cancel again -> 409",
			Focus: "terminal status is final",
			Run: func(ctx context.Context, r *Runner) Result {
				id, res := r.createBooking(ctx)
				if res != nil {
					return *res
				}
				code, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/cancel", r.cfg.PassengerToken, map[string]any{"reason": "bench"})
				if err != nil || code != http.StatusOK {
					return failStatus("cancel", code, err)
				}
				code, _, err = r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/cancel", r.cfg.PassengerToken, nil)
				if err != nil || code != http.StatusConflict {
					return failStatus("second cancel", code, err)
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Offer: decline returns booking to pending",
			Focus: "declined driver is not offered the same booking again",
			Run: func(ctx context.Context, r *Runner) Result {
				id, _, res := r.assignedBooking(ctx)
				if res != nil {
					return *res
				}
				defer r.cancel(ctx, id)
				code, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/decline", r.cfg.DriverToken, nil)
				if err != nil || code != http.StatusOK {
					return failStatus("decline", code, err)
				}
				b, err := r.waitBooking(ctx, id, 2*time.Second, func(b map[string]any) bool {
					return b["status"] == "pending_assignment"
				})
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if b["driver_id"] != nil {
					return Result{Status: StatusFail, Note: fmt.Sprintf("driver_id=%v", b["driver_id"])}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Offer: unanswered offer expires",
			Focus: "expiry ticker releases the booking after the offer window",
			Run: func(ctx context.Context, r *Runner) Result {
				id, offerID, res := r.assignedBooking(ctx)
				if res != nil {
					return *res
				}
				defer r.cancel(ctx, id)
				start := time.Now()
				deadline := time.Now().Add(r.cfg.OfferWindow + 15*time.Second)
				for time.Now().Before(deadline) {
					_, o, err := r.call(ctx, http.MethodGet, "/api/offers/"+offerID, r.cfg.DriverToken, nil)
					if err == nil && o["status"] == "expired" {
						return Result{Status: StatusPass, Latency: time.Since(start)}
					}
					select {
					case <-ctx.Done():
						return Result{Status: StatusFail, Note: ctx.Err().Error()}
					case <-time.After(time.Second):
					}
				}
				return Result{Status: StatusFail, Note: "offer still pending"}
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: multi accept same offer",
			Focus: "exactly one accept succeeds",
			Run: func(ctx context.Context, r *Runner) Result {
				id, _, res := r.assignedBooking(ctx)
				if res != nil {
					return *res
				}
				defer r.cancel(ctx, id)
				return concurrentAccept(ctx, r, "/api/bookings/"+id+"/accept")
			},
		},

		// Performance
		{
			Name:  "Perf: driver location throughput",
			Focus: "location reports per second",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPut, "/api/drivers/location", r.cfg.DriverToken, map[string]any{
					"lat": 51.5012,
					"lng": -0.1251,
				})
			},
		},
	}
}

func httpCase(name, method, path, token string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			code, _, err := r.call(ctx, method, path, token, body)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			latency := time.Since(start)
			if code == want {
				return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
			}
			return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
		},
	}
}

// call sends one JSON request and decodes a JSON object response when there is one.
func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		out = nil
	}
	return resp.StatusCode, out, nil
}

func (r *Runner) createBooking(ctx context.Context) (string, *Result) {
	code, b, err := r.call(ctx, http.MethodPost, "/api/bookings", r.cfg.PassengerToken, map[string]any{
		"passenger_name": "Bench Passenger",
		"operator_id":    r.cfg.OperatorID,
		"pickup":         map[string]any{"lat": 51.5007, "lng": -0.1246, "address": "Westminster"},
		"dropoff":        map[string]any{"lat": 51.5033, "lng": -0.1195, "address": "London Eye"},
		"fare_estimate":  map[string]any{"amount": 1250, "currency": "GBP"},
	})
	if err != nil || code != http.StatusCreated {
		res := failStatus("create booking", code, err)
		return "", &res
	}
	id, _ := b["id"].(string)
	return id, nil
}

// assignedBooking creates a booking and waits until it is offered to the bench driver.
func (r *Runner) assignedBooking(ctx context.Context) (string, string, *Result) {
	id, res := r.createBooking(ctx)
	if res != nil {
		return "", "", res
	}
	uid, _, _ := strings.Cut(r.cfg.DriverToken, "|")
	b, err := r.waitBooking(ctx, id, 5*time.Second, func(b map[string]any) bool {
		return b["status"] == "driver_assigned" && b["driver_id"] == uid
	})
	if err != nil {
		r.cancel(ctx, id)
		return "", "", &Result{Status: StatusFail, Note: err.Error()}
	}
	offerID, _ := b["current_offer_id"].(string)
	return id, offerID, nil
}

func (r *Runner) waitBooking(ctx context.Context, id string, within time.Duration, ok func(map[string]any) bool) (map[string]any, error) {
	deadline := time.Now().Add(within)
	var last map[string]any
	for {
		code, b, err := r.call(ctx, http.MethodGet, "/api/bookings/"+id, r.cfg.PassengerToken, nil)
		if err == nil && code == http.StatusOK {
			last = b
			if ok(b) {
				return b, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("booking %s not ready: status=%v driver=%v", id, last["status"], last["driver_id"])
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (r *Runner) cancel(ctx context.Context, id string) {
	_, _, _ = r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/cancel", r.cfg.PassengerToken, nil)
}

func failStatus(step string, code int, err error) Result {
	if err != nil {
		return Result{Status: StatusFail, Note: step + ": " + err.Error()}
	}
	return Result{Status: StatusFail, Note: fmt.Sprintf("%s: status=%d", step, code)}
}

func concurrentAccept(ctx context.Context, r *Runner, path string) Result {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		succ int
		conf int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _, err := r.call(ctx, http.MethodPost, path, r.cfg.DriverToken, nil)
			if err != nil {
				return
			}
			mu.Lock()
			switch code {
			case http.StatusOK:
				succ++
			case http.StatusConflict:
				conf++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", succ, conf)
	if succ == 1 {
		return Result{Status: StatusPass, Note: note}
	}
	return Result{Status: StatusFail, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.call(ctx, method, path, token, payload)
				mu.Lock()
				if err != nil || code >= 300 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
