// Package routes exposes the hub's HTTP surface: the command endpoint,
// liveness, and metrics.
package routes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/auth"
	"github.com/ipnet-mesh/meshcore-hub/pkg/config"
	"github.com/ipnet-mesh/meshcore-hub/pkg/gateway"
)

const apiKeyHeader = "X-API-Key"

// shutdownTimeout bounds how long in-flight requests may run once the
// server is asked to stop.
const shutdownTimeout = 5 * time.Second

// HealthChecker reports whether the ingestion side is healthy.
type HealthChecker interface {
	Healthy() bool
}

// WebRouter serves the command API, health, and metrics endpoints.
type WebRouter struct {
	config  config.GatewayConfig
	gateway *gateway.Gateway
	health  HealthChecker
	metrics *metrics.Metrics
}

// Initialize wires the router and serves on the configured address until
// the context is cancelled.
func (wr *WebRouter) Initialize(ctx context.Context, cfg config.GatewayConfig, gw *gateway.Gateway, health HealthChecker, m *metrics.Metrics) error {
	wr.config = cfg
	wr.gateway = gw
	wr.health = health
	wr.metrics = m

	return wr.handleRequests(ctx, cfg.ListenAddr)
}

func (wr *WebRouter) handleRequests(ctx context.Context, listenAddr string) error {
	myRouter := mux.NewRouter().StrictSlash(true)

	myRouter.HandleFunc("/api/commands/{name}", wr.requireAPIKey(wr.postCommand)).Methods("POST")
	myRouter.HandleFunc("/healthz", wr.healthz).Methods("GET")
	myRouter.Handle("/metrics", promhttp.HandlerFor(wr.metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(RequestLogger)
	h := handlers.RecoveryHandler()

	srv := &http.Server{Addr: listenAddr, Handler: h(myRouter)}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// RequestLogger logs every request with its caller context.
func RequestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr, "user_agent", r.UserAgent())
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// requireAPIKey rejects requests whose key matches none of the configured
// salted hashes.
func (wr *WebRouter) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" || !wr.keyAllowed(key) {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func (wr *WebRouter) keyAllowed(key string) bool {
	for _, entry := range wr.config.APIKeys {
		// Entries are "salt:hash" as produced by genkey.
		salt, hash, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		if auth.VerifyKey(key, salt, hash) {
			return true
		}
	}
	return false
}

func (wr *WebRouter) postCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	err := wr.gateway.Send(name, payload)
	if err != nil {
		var reqErr *gateway.RequestError
		switch {
		case errors.Is(err, gateway.ErrUnknownCommand):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &reqErr):
			writeError(w, http.StatusBadRequest, reqErr.Error())
		default:
			slog.Error("command publish failed", "command", name, "error", err)
			writeError(w, http.StatusBadGateway, "publishing command failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "command": name})
}

func (wr *WebRouter) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if wr.health != nil && !wr.health.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"healthy": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"healthy": true})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
