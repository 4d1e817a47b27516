package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/dbheartbeat/internal/common"
	"github.com/G-Research/dbheartbeat/internal/common/health"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/healthcheck"
)

const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
	StatsPath   = "/stats"

	statsMovedMessage = "Please use /metrics for machine-readable statistics."
)

// NewMux registers every route served on the main HTTP port.
func NewMux(reporter *healthcheck.Reporter, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", indexHandler(len(reporter.Targets())))
	health.SetupHttpMux(mux, HealthPath, reporter, healthcheck.Render)
	mux.Handle(HealthPath+"/", targetHealthHandler(reporter))
	mux.Handle(MetricsPath, common.MetricsHandler(gatherer))
	mux.HandleFunc(StatsPath, statsHandler)
	return mux
}

func indexHandler(targets int) http.HandlerFunc {
	message := fmt.Sprintf(
		"dbheartbeat is running and writing timestamps to %d database(s). Check %s for Prometheus data.\n",
		targets, MetricsPath)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeText(w, http.StatusOK, message)
	}
}

func targetHealthHandler(reporter *healthcheck.Reporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(strings.TrimPrefix(r.URL.Path, HealthPath+"/"), "/")
		checker, ok := reporter.CheckerFor(name)
		if !ok {
			health.WriteJson(w, http.StatusNotFound, healthcheck.Response{
				Status:             healthcheck.StatusUnhealthy,
				DatabaseConnection: fmt.Sprintf("unknown target %q", name),
			})
			return
		}
		health.NewHealthCheckHttpHandler(checker, healthcheck.Render).ServeHTTP(w, r)
	})
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusNotFound, statsMovedMessage+"\n")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}
