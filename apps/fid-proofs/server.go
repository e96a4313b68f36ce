package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkiv/arkiv-platform-reference/internal/telemetry"
)

// metricsServer serves /metrics and /healthz while a run is in progress.
type metricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(healthzPath, handleHealthz)
	mux.Handle(metricsPath, promhttp.Handler())
	return mux
}

// startMetricsServer listens on addr and serves in the background.
func startMetricsServer(addr string, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	m := &metricsServer{
		srv:    &http.Server{Handler: instrument(newMux()), ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return m, nil
}

// Addr is the bound address, useful when addr had port 0.
func (m *metricsServer) Addr() string {
	return m.ln.Addr().String()
}

func (m *metricsServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Error("shutdown", "err", err)
	}
}

const (
	healthzPath = "/healthz"
	metricsPath = "/metrics"
)

// handleHealthz reports liveness only; the run has no readiness phase.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		io.WriteString(w, "ok\n")
	}
}

// routeLabel keeps the path label bounded: unrouted paths share "other".
func routeLabel(path string) string {
	switch path {
	case healthzPath, metricsPath:
		return path
	default:
		return "other"
	}
}

// instrument records request count and latency per route.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, route, telemetry.StatusLabel(rec.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status is the response status; a handler that wrote nothing sent 200.
func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
