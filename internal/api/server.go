package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux регистрирует /healthz и /metrics.
// gatherer == nil — prometheus.DefaultGatherer.
func NewMux(checks map[string]Check, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	chain := Chain(
		Recovery(logger),
		Logging(logger),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", chain(Health(checks)))
	mux.Handle("GET /metrics", chain(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return mux
}

// NewServer создаёт http.Server с таймаутами.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
