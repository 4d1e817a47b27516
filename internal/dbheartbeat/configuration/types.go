package configuration

import (
	"time"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

type DbHeartbeatConfig struct {
	// Port the HTTP server (/, /health, /metrics) listens on
	HttpPort uint16 `validate:"required"`
	// If non-zero, /metrics is additionally served on this port
	MetricsPort   uint16
	MetricsPrefix string `validate:"required"`
	LogLevel      string `validate:"omitempty,oneof=trace debug info warn warning error"`
	// Time slept after every write attempt, per target
	WriteInterval time.Duration `validate:"gt=0"`
	Connection    ConnectionConfig
	// Extra regular expressions, matched case-insensitively against error text, that mark an error as timeout-like
	TimeoutErrorPatterns []string `validate:"dive,regexp"`
	Tracing              TracingConfig
	Targets              []target.Target `validate:"required,min=1,dive"`
}

type ConnectionConfig struct {
	// Number of connect attempts made before a target is left in degraded mode
	Retries        uint          `validate:"gte=1"`
	RetryDelay     time.Duration `validate:"gte=0"`
	ConnectTimeout time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	ProbeTimeout   time.Duration `validate:"gt=0"`
	TableName      string        `validate:"required,sql_identifier"`
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string `validate:"required_if=Enabled true"`
	Environment string
}

// TargetNames returns the configured target names in configuration order.
func (c *DbHeartbeatConfig) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		names = append(names, t.Name)
	}
	return names
}
