package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-overlays/internal/indicator"
	"trading-overlays/internal/logger"
	"trading-overlays/internal/overlay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxImportBytes bounds the POST /api/candles body.
const maxImportBytes = 8 << 20

// Deps wires the HTTP router.
type Deps struct {
	Service *overlay.Service
	Hub     *Hub

	// AdminTOTPSecret guards POST /api/candles; empty disables the endpoint.
	AdminTOTPSecret string
}

type api struct {
	svc *overlay.Service
	hub *Hub
}

// NewRouter builds the REST and websocket routes.
func NewRouter(d Deps) http.Handler {
	a := &api{svc: d.Service, hub: d.Hub}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(traceRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/api/indicators", a.handleIndicators)
	r.Get("/api/presets", a.handlePresets)
	r.Get("/api/symbols", a.handleSymbols)
	r.Get("/api/overlays", a.handleOverlays)
	r.Get("/api/stats", a.handleStats)
	r.With(requireAdminOTP(d.AdminTOTPSecret)).Post("/api/candles", a.handleImport)
	r.Get("/ws", d.Hub.ServeWS)

	return r
}

func (a *api) handleIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, indicator.Catalog())
}

func (a *api) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Presets().Presets)
}

func (a *api) handleSymbols(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	infos, err := a.svc.Symbols(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]SymbolOut, len(infos))
	for i, s := range infos {
		out[i] = SymbolOut{SymbolInfo: s, Label: TFLabel(s.TF)}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOverlays serves GET /api/overlays?symbol=&tf=&ind=SMA:20&ind=RSI:14&preset=&window=.
// ind may repeat or hold a comma-separated list.
func (a *api) handleOverlays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tf, err := strconv.Atoi(q.Get("tf"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: tf must be an integer number of seconds", overlay.ErrInvalidRequest))
		return
	}
	window := 0
	if s := q.Get("window"); s != "" {
		if window, err = strconv.Atoi(s); err != nil {
			writeError(w, r, fmt.Errorf("%w: window must be an integer", overlay.ErrInvalidRequest))
			return
		}
	}
	specs, err := indicator.ParseSpecs(strings.Join(q["ind"], ","))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := a.svc.Overlays(r.Context(), overlay.Request{
		Symbol: q.Get("symbol"),
		TF:     tf,
		Specs:  specs,
		Preset: q.Get("preset"),
		Window: window,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", overlay.ErrInvalidRequest, err))
		return
	}
	n, err := a.svc.Ingest(r.Context(), req.Symbol, req.TF, req.Candles, req.Derive...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": req.Symbol, "tf": req.TF, "stored": n, "derived": req.Derive})
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ws_clients":   a.hub.ClientCount(),
		"push_latency": a.hub.Latency.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses with a {"error": "..."} body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, indicator.ErrInvalidSpec), errors.Is(err, overlay.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, overlay.ErrNoCandles), errors.Is(err, overlay.ErrUnknownPreset):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", append(logger.LogWithTrace(r.Context()), "path", r.URL.Path, "error", err)...)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// traceRequests tags each request with a trace ID and logs its outcome.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = logger.GenerateTraceID("req", start)
		}
		ctx := logger.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		slog.Debug("http request",
			append(logger.LogWithTrace(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			)...)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-OTP, X-Trace-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TFLabel renders a timeframe in seconds as "30s", "5m" or "4h".
func TFLabel(tf int) string {
	switch {
	case tf < 60 || tf%60 != 0:
		return strconv.Itoa(tf) + "s"
	case tf < 3600 || tf%3600 != 0:
		return strconv.Itoa(tf/60) + "m"
	default:
		return strconv.Itoa(tf/3600) + "h"
	}
}
