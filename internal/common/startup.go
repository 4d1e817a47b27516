package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/weaveworks/promrus"

	commonconfig "github.com/G-Research/dbheartbeat/internal/common/config"
)

// BindCommandlineArguments binds parsed flags to the global viper instance, so that flags
// such as --config are visible through viper.Get*.
func BindCommandlineArguments(flags *pflag.FlagSet) error {
	return errors.WithStack(viper.BindPFlags(flags))
}

// LoadConfig populates a viper instance from the given defaults, any user specified yaml files
// (later files override earlier ones) and finally the process environment.
// Keys are matched case-insensitively, and environment variables take precedence over files.
func LoadConfig(defaults map[string]interface{}, userSpecifiedConfigs []string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, configPath := range userSpecifiedConfigs {
		if strings.TrimSpace(configPath) == "" {
			continue
		}
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config from %s", configPath)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}
	v.AutomaticEnv()
	return v, nil
}

// Unmarshal decodes viper state into config using the shared decode hooks.
func Unmarshal(v *viper.Viper, config interface{}) error {
	return errors.WithStack(v.Unmarshal(config, commonconfig.CustomHooks...))
}

func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// SetLogLevel parses and applies level; an unparseable level leaves the current level in place.
func SetLogLevel(level string) {
	if level == "" {
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, keeping %s", level, log.GetLevel())
		return
	}
	log.SetLevel(parsed)
}

// ServeMetricsFor serves /metrics for gatherer on a dedicated port until ctx is cancelled.
func ServeMetricsFor(ctx context.Context, port uint16, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(gatherer))
	return ServeHttp(ctx, port, mux)
}

// MetricsHandler returns the exposition handler for gatherer.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RegisterLogMetrics counts log lines by level. promrus registers its counter
// with the default prometheus registry.
func RegisterLogMetrics() error {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return errors.WithStack(err)
	}
	log.AddHook(hook)
	return nil
}

// ServeHttp serves handler on port until ctx is cancelled and then shuts the server down.
// It returns an error only if the server could not listen or failed while serving.
func ServeHttp(ctx context.Context, port uint16, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting http server listening on %d", port)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return errors.Wrapf(err, "http server listening on %d failed", port)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Infof("Stopping http server listening on %d", port)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warnf("error stopping http server listening on %d", port)
	}
	<-serveErr
	return nil
}
