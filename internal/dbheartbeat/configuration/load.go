package configuration

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/G-Research/dbheartbeat/internal/common"
	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

const (
	DefaultWriteIntervalSeconds = 5
	DefaultPort                 = 5432
	DefaultMultiTargetUser      = "k8sadmin"
	DefaultMultiTargetDatabase  = "timestamp"
)

// Flat keys. Environment variables use the same names in upper case and take precedence over config files.
const (
	keyHttpPort             = "http_port"
	keyMetricsPort          = "metrics_port"
	keyMetricsPrefix        = "metrics_prefix"
	keyLogLevel             = "log_level"
	keyWriteInterval        = "db_write_interval_seconds"
	keyConnectRetries       = "db_connect_retries"
	keyConnectRetryDelay    = "db_connect_retry_delay"
	keyConnectTimeout       = "db_connect_timeout"
	keyWriteTimeout         = "db_write_timeout"
	keyProbeTimeout         = "db_probe_timeout"
	keyTableName            = "db_table_name"
	keyDriver               = "db_driver"
	keySSLMode              = "db_sslmode"
	keyTimeoutErrorPatterns = "timeout_error_patterns"
	keySimulateFailure      = "simulate_db_failure"
	keyTracingEnabled       = "tracing_enabled"
	keyServiceName          = "otel_service_name"
	keyEnvironment          = "environment"
	keyDatabaseNames        = "database_names"
	keyTargetName           = "db_target_name"
	keyHost                 = "db_host"
	keyPort                 = "db_port"
	keyUser                 = "db_user"
	keyPassword             = "db_password"
	keyDatabase             = "db_name"
)

// rawConfig mirrors the flat key space before targets are expanded.
type rawConfig struct {
	HttpPort             uint16        `mapstructure:"http_port"`
	MetricsPort          uint16        `mapstructure:"metrics_port"`
	MetricsPrefix        string        `mapstructure:"metrics_prefix"`
	LogLevel             string        `mapstructure:"log_level"`
	WriteInterval        string        `mapstructure:"db_write_interval_seconds"`
	ConnectRetries       uint          `mapstructure:"db_connect_retries"`
	ConnectRetryDelay    time.Duration `mapstructure:"db_connect_retry_delay"`
	ConnectTimeout       time.Duration `mapstructure:"db_connect_timeout"`
	WriteTimeout         time.Duration `mapstructure:"db_write_timeout"`
	ProbeTimeout         time.Duration `mapstructure:"db_probe_timeout"`
	TableName            string        `mapstructure:"db_table_name"`
	Driver               string        `mapstructure:"db_driver"`
	SSLMode              string        `mapstructure:"db_sslmode"`
	TimeoutErrorPatterns []string      `mapstructure:"timeout_error_patterns"`
	SimulateFailure      string        `mapstructure:"simulate_db_failure"`
	TracingEnabled       bool          `mapstructure:"tracing_enabled"`
	ServiceName          string        `mapstructure:"otel_service_name"`
	Environment          string        `mapstructure:"environment"`
	DatabaseNames        []string      `mapstructure:"database_names"`
	TargetName           string        `mapstructure:"db_target_name"`
	Host                 string        `mapstructure:"db_host"`
	Port                 string        `mapstructure:"db_port"`
	User                 string        `mapstructure:"db_user"`
	Password             string        `mapstructure:"db_password"`
	Database             string        `mapstructure:"db_name"`
}

func Defaults() map[string]interface{} {
	return map[string]interface{}{
		keyHttpPort:             8080,
		keyMetricsPort:          0,
		keyMetricsPrefix:        "dbheartbeat_",
		keyLogLevel:             "info",
		keyWriteInterval:        strconv.Itoa(DefaultWriteIntervalSeconds),
		keyConnectRetries:       5,
		keyConnectRetryDelay:    "5s",
		keyConnectTimeout:       "10s",
		keyWriteTimeout:         "10s",
		keyProbeTimeout:         "2s",
		keyTableName:            "timestamps",
		keyDriver:               target.DriverPgx,
		keySSLMode:              "disable",
		keyTimeoutErrorPatterns: "",
		keySimulateFailure:      "false",
		keyTracingEnabled:       false,
		keyServiceName:          "dbheartbeat",
		keyEnvironment:          "development",
		keyDatabaseNames:        "",
		keyTargetName:           "default",
		keyHost:                 "",
		keyPort:                 strconv.Itoa(DefaultPort),
		keyUser:                 "",
		keyPassword:             "",
		keyDatabase:             "",
	}
}

// Load reads defaults, the given yaml files and the environment, then builds and validates the configuration.
// Any returned error is a ConfigError and should stop the process.
func Load(userSpecifiedConfigs []string) (*DbHeartbeatConfig, error) {
	v, err := common.LoadConfig(Defaults(), userSpecifiedConfigs)
	if err != nil {
		return nil, errors.WithStack(&dberrors.ErrConfig{Message: err.Error()})
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*DbHeartbeatConfig, error) {
	raw := rawConfig{}
	if err := common.Unmarshal(v, &raw); err != nil {
		return nil, errors.WithStack(&dberrors.ErrConfig{Message: err.Error()})
	}

	config := &DbHeartbeatConfig{
		HttpPort:      raw.HttpPort,
		MetricsPort:   raw.MetricsPort,
		MetricsPrefix: raw.MetricsPrefix,
		LogLevel:      raw.LogLevel,
		WriteInterval: parseWriteInterval(raw.WriteInterval),
		Connection: ConnectionConfig{
			Retries:        raw.ConnectRetries,
			RetryDelay:     raw.ConnectRetryDelay,
			ConnectTimeout: raw.ConnectTimeout,
			WriteTimeout:   raw.WriteTimeout,
			ProbeTimeout:   raw.ProbeTimeout,
			TableName:      raw.TableName,
		},
		TimeoutErrorPatterns: raw.TimeoutErrorPatterns,
		Tracing: TracingConfig{
			Enabled:     raw.TracingEnabled,
			ServiceName: raw.ServiceName,
			Environment: raw.Environment,
		},
	}

	var targets []target.Target
	var err error
	if len(raw.DatabaseNames) > 0 {
		targets, err = multiTargets(v, raw)
	} else {
		targets, err = singleTarget(raw)
	}
	if err != nil {
		return nil, err
	}
	config.Targets = targets

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// parseWriteInterval never fails: anything other than a positive integer falls back to the default.
func parseWriteInterval(raw string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds <= 0 {
		log.Warnf("%s value %q is not a positive integer. Using default %d seconds.",
			strings.ToUpper(keyWriteInterval), raw, DefaultWriteIntervalSeconds)
		seconds = DefaultWriteIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

func singleTarget(raw rawConfig) ([]target.Target, error) {
	port, err := parsePort(strings.ToUpper(keyPort), raw.Port)
	if err != nil {
		return nil, err
	}
	t := target.Target{
		Name:            raw.TargetName,
		Driver:          raw.Driver,
		Host:            raw.Host,
		Port:            port,
		User:            raw.User,
		Password:        raw.Password,
		Database:        raw.Database,
		SSLMode:         raw.SSLMode,
		SimulateFailure: isTrue(raw.SimulateFailure),
	}
	var result *multierror.Error
	if t.Driver != target.DriverSQLite && t.Host == "" {
		result = multierror.Append(result, missing(strings.ToUpper(keyHost)))
	}
	if t.Database == "" {
		result = multierror.Append(result, missing(strings.ToUpper(keyDatabase)))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	log.Infof("Loaded database configuration for: %s", t)
	return []target.Target{t}, nil
}

// multiTargets expands DATABASE_NAMES into one target per name. Each name's settings are read from keys
// prefixed with the upper-cased name, e.g. ALPHA_DB_HOST for "alpha".
func multiTargets(v *viper.Viper, raw rawConfig) ([]target.Target, error) {
	var result *multierror.Error
	targets := make([]target.Target, 0, len(raw.DatabaseNames))
	for _, name := range raw.DatabaseNames {
		prefix := strings.ToUpper(name) + "_"
		lookup := func(key string, defaultValue string) string {
			if value := strings.TrimSpace(v.GetString(prefix + key)); value != "" {
				return value
			}
			return defaultValue
		}

		t := target.Target{
			Name:     name,
			Driver:   lookup("DB_DRIVER", raw.Driver),
			Host:     lookup("DB_HOST", ""),
			User:     lookup("DB_USER", DefaultMultiTargetUser),
			Password: lookup("DB_PASSWORD", ""),
			Database: lookup("DB_DBNAME", DefaultMultiTargetDatabase),
			SSLMode:  lookup("DB_SSLMODE", raw.SSLMode),
		}
		t.SimulateFailure = isTrue(lookup("SIMULATE_DB_FAILURE", raw.SimulateFailure))

		port, err := parsePort(prefix+"DB_PORT", lookup("DB_PORT", strconv.Itoa(DefaultPort)))
		if err != nil {
			result = multierror.Append(result, err)
		}
		t.Port = port

		if t.Driver != target.DriverSQLite {
			if t.Host == "" {
				result = multierror.Append(result, missing(prefix+"DB_HOST"))
			}
			if t.Password == "" {
				result = multierror.Append(result, missing(prefix+"DB_PASSWORD"))
			}
		}
		targets = append(targets, t)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	for _, t := range targets {
		log.Infof("Loaded database configuration for: %s", t)
	}
	return targets, nil
}

func parsePort(name string, value string) (uint16, error) {
	port, err := strconv.ParseUint(strings.TrimSpace(value), 10, 16)
	if err != nil {
		return 0, errors.WithStack(&dberrors.ErrConfig{Name: name, Message: "must be a port number, got " + strconv.Quote(value)})
	}
	return uint16(port), nil
}

func missing(name string) error {
	return errors.WithStack(&dberrors.ErrConfig{Name: name, Message: "required but not set"})
}

func isTrue(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}
