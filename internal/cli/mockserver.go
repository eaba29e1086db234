package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

func newMockServerCmd() *cobra.Command {
	var (
		addr       string
		cpu        float64
		memory     float64
		anomaly    float64
		limit      int
		retryAfter int
		latency    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mockserver",
		Short: "Run a mock AstraGuard backend for local testing",
		Long: `Serves a fake /health/state endpoint with configurable metrics and
echoes any /api/v1 request. With --limit set, requests beyond the limit per
minute receive 429 with a Retry-After header, which exercises the client's
global backoff path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &mockBackend{
				cpu:        cpu,
				memory:     memory,
				anomaly:    anomaly,
				limit:      limit,
				retryAfter: retryAfter,
				latency:    latency,
			}

			r := mux.NewRouter()
			r.HandleFunc("/health/state", srv.handleHealth).Methods(http.MethodGet)
			r.PathPrefix("/api/v1/").HandlerFunc(srv.handleAPI)

			httpServer := &http.Server{
				Addr:         addr,
				Handler:      r,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			go func() {
				<-rootContext.Done()
				httpServer.Close()
			}()

			logger.Info().
				Str("addr", addr).
				Float64("cpu", cpu).
				Int("limit", limit).
				Msg("mock backend listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("mock server failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().Float64Var(&cpu, "cpu", 35, "Reported CPU usage percent")
	cmd.Flags().Float64Var(&memory, "memory", 40, "Reported memory usage percent")
	cmd.Flags().Float64Var(&anomaly, "anomaly", 0.1, "Reported anomaly score (0-1)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Requests per minute before 429 (0 disables)")
	cmd.Flags().IntVar(&retryAfter, "retry-after", 2, "Retry-After seconds sent with 429")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Artificial per-request latency")
	return cmd
}

type mockBackend struct {
	cpu        float64
	memory     float64
	anomaly    float64
	limit      int
	retryAfter int
	latency    time.Duration

	mu          sync.Mutex
	windowStart time.Time
	served      int
	conns       int
}

func (s *mockBackend) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	conns := s.conns
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"cpu_usage":          s.cpu,
		"memory_usage":       s.memory,
		"anomaly_score":      s.anomaly,
		"active_connections": conns,
	})
}

func (s *mockBackend) handleAPI(w http.ResponseWriter, r *http.Request) {
	if s.limit > 0 && !s.admit() {
		w.Header().Set("Retry-After", strconv.Itoa(s.retryAfter))
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conns--
		s.mu.Unlock()
	}()

	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"method":   r.Method,
		"path":     r.URL.Path,
		"received": time.Now().UTC().Format(time.RFC3339),
	})
}

// admit counts requests in a fixed one-minute window.
func (s *mockBackend) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.windowStart) >= time.Minute {
		s.windowStart = now
		s.served = 0
	}
	if s.served >= s.limit {
		return false
	}
	s.served++
	return true
}
