package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/kelas/internal/config"
)

const defaultServiceName = "kelas"

// Config is the slice of the application config read by logging, tracing
// and metrics.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	// SlowQuery is the SQL latency above which statements log at warn.
	SlowQuery time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             logLevel,
		LogFormat:            strings.ToLower(strings.TrimSpace(cfg.LogFormat)),
		SlowQuery:            time.Duration(cfg.DBSlowQueryMS) * time.Millisecond,
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(cfg.OTLPProtocol)),
		OtelSamplingRatio:    cfg.OtelSamplingRatio,
	}
}

// Debug is true for debug logging or a local environment. It turns on
// stack traces, per-query SQL logs and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
