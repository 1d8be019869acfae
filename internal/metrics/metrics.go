package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the overlay server.
type Metrics struct {
	// Overlay engine
	OverlayComputeDur *prometheus.HistogramVec // labels: kind
	OverlaysTotal     *prometheus.CounterVec   // labels: kind
	EmptyOverlays     *prometheus.CounterVec   // labels: kind
	CandlesPerRequest prometheus.Histogram

	// Overlay cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Candle store
	CandlesIngested prometheus.Counter
	SQLiteReadDur   prometheus.Histogram
	SQLiteWriteDur  prometheus.Histogram

	// Websocket fan-out
	WSClients     prometheus.Gauge
	WSPushesTotal prometheus.Counter
	WSDropsTotal  prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Cache warmer
	WarmRunsTotal *prometheus.CounterVec // labels: result=ok|error
	WarmRunDur    prometheus.Histogram
}

// NewMetrics registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg. Tests pass a fresh registry
// so repeated construction does not panic on duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OverlayComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overlays_compute_duration_seconds",
			Help:    "Indicator overlay compute latency per spec",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		OverlaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlays_computed_total",
			Help: "Total overlays computed (cache misses)",
		}, []string{"kind"}),
		EmptyOverlays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlays_empty_total",
			Help: "Overlays that had insufficient candles to produce any point",
		}, []string{"kind"}),
		CandlesPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlays_request_candles",
			Help:    "Candle window size per overlay request",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlays_cache_hits_total",
			Help: "Overlay cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlays_cache_misses_total",
			Help: "Overlay cache misses",
		}),

		CandlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlays_candles_ingested_total",
			Help: "Candles written through the admin import endpoint",
		}),
		SQLiteReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlays_sqlite_read_duration_seconds",
			Help:    "SQLite candle window read latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlays_sqlite_write_duration_seconds",
			Help:    "SQLite candle batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlays_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSPushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlays_ws_pushes_total",
			Help: "Overlay snapshots pushed to websocket clients",
		}),
		WSDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlays_ws_drops_total",
			Help: "Websocket messages dropped because a client send buffer was full",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlays_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlays_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WarmRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlays_warm_runs_total",
			Help: "Scheduled cache warm runs by result",
		}, []string{"result"}),
		WarmRunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlays_warm_run_duration_seconds",
			Help:    "Duration of one scheduled cache warm run",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.OverlayComputeDur,
		m.OverlaysTotal,
		m.EmptyOverlays,
		m.CandlesPerRequest,
		m.CacheHits,
		m.CacheMisses,
		m.CandlesIngested,
		m.SQLiteReadDur,
		m.SQLiteWriteDur,
		m.WSClients,
		m.WSPushesTotal,
		m.WSDropsTotal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WarmRunsTotal,
		m.WarmRunDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool `json:"redis_enabled"`
	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		RedisEnabled: redisEnabled,
		StartedAt:    time.Now(),
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs dependency checks immediately and then every interval.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}

	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// SQLite is required; Redis only degrades caching.
	overallStatus := "healthy"
	httpCode := http.StatusOK
	if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
