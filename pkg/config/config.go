// Package config loads the generator settings from flags, the environment
// and an optional YAML file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys
const (
	KeyConfigFile     = "config"
	KeyNomadAddr      = "nomad_addr"
	KeyNomadToken     = "nomad_token"
	KeyAllocID        = "alloc_id"
	KeyLogDir         = "log_dir"
	KeyOutputFile     = "output_file"
	KeyLokiEndpoint   = "loki_endpoint"
	KeyRefresh        = "refresh_interval"
	KeyContinuous     = "continuous_mode"
	KeyLogLevel       = "log_level"
	KeyMetricsAddr    = "metrics_addr"
	KeyTracingEnabled = "tracing.enabled"
	KeyTracingAddr    = "tracing.endpoint"
	KeyTracingSample  = "tracing.sample_rate"
)

// envNames maps keys to the variables set by the Nomad job
var envNames = map[string]string{
	KeyNomadAddr:      "NOMAD_ADDR",
	KeyNomadToken:     "NOMAD_TOKEN",
	KeyAllocID:        "NOMAD_ALLOC_ID",
	KeyLogDir:         "NOMAD_LOG_DIR",
	KeyOutputFile:     "ALLOY_DISCOVERY_FILE",
	KeyLokiEndpoint:   "LOKI_ENDPOINT",
	KeyRefresh:        "REFRESH_INTERVAL",
	KeyContinuous:     "CONTINUOUS_MODE",
	KeyLogLevel:       "LOG_LEVEL",
	KeyMetricsAddr:    "METRICS_ADDR",
	KeyTracingEnabled: "OTEL_TRACING_ENABLED",
	KeyTracingAddr:    "OTEL_EXPORTER_OTLP_ENDPOINT",
	KeyTracingSample:  "OTEL_TRACING_SAMPLE_RATE",
}

// Defaults
const (
	DefaultNomadAddr    = "http://127.0.0.1:4646"
	DefaultLogDir       = "/opt/nomad/data/alloc"
	DefaultOutputFile   = "/alloy/targets.json"
	DefaultLokiEndpoint = "http://loki:3100/loki/api/v1/push"
	DefaultRefresh      = 60
	DefaultLogLevel     = "info"
	DefaultTracingAddr  = "localhost:4317"
)

// TracingConfig configures OTLP trace export
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Config holds the generator settings
type Config struct {
	NomadAddr       string        `yaml:"nomad_addr"`
	NomadToken      string        `yaml:"-"`
	AllocID         string        `yaml:"alloc_id"`
	LogDir          string        `yaml:"log_dir"`
	OutputFile      string        `yaml:"output_file"`
	LokiEndpoint    string        `yaml:"loki_endpoint"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Continuous      bool          `yaml:"continuous_mode"`
	LogLevel        string        `yaml:"log_level"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	Tracing         TracingConfig `yaml:"tracing"`
}

// BindFlags registers the generator flags on fs and binds them into v
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("config", "", "Config file path (YAML)")
	fs.String("nomad-addr", DefaultNomadAddr, "Nomad API address (http://, https://, unix:// or http+unix://)")
	fs.String("nomad-token", "", "Nomad ACL token")
	fs.String("alloc-id", "", "ID of the allocation this process runs in")
	fs.String("log-dir", DefaultLogDir, "Host directory holding Nomad allocation directories")
	fs.String("output-file", DefaultOutputFile, "Path of the generated Alloy file")
	fs.String("loki-endpoint", DefaultLokiEndpoint, "Loki push URL written into the Alloy file")
	fs.Int("refresh-interval", DefaultRefresh, "Seconds between refreshes in continuous mode")
	fs.String("continuous-mode", "true", "Keep refreshing (true, 1, yes) or run once")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "Metrics and health server bind address, empty to disable")
	fs.Bool("tracing-enabled", false, "Export traces over OTLP/gRPC")
	fs.String("tracing-endpoint", DefaultTracingAddr, "OTLP/gRPC collector address")
	fs.Float64("tracing-sample-rate", 1.0, "Trace sample rate between 0 and 1")

	flagKeys := map[string]string{
		"config":              KeyConfigFile,
		"nomad-addr":          KeyNomadAddr,
		"nomad-token":         KeyNomadToken,
		"alloc-id":            KeyAllocID,
		"log-dir":             KeyLogDir,
		"output-file":         KeyOutputFile,
		"loki-endpoint":       KeyLokiEndpoint,
		"refresh-interval":    KeyRefresh,
		"continuous-mode":     KeyContinuous,
		"log-level":           KeyLogLevel,
		"metrics-addr":        KeyMetricsAddr,
		"tracing-enabled":     KeyTracingEnabled,
		"tracing-endpoint":    KeyTracingAddr,
		"tracing-sample-rate": KeyTracingSample,
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads the configuration out of v, merging the config file if one
// was given.
func Load(v *viper.Viper) (*Config, error) {
	if configFile := v.GetString(KeyConfigFile); configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	refresh, err := parseSeconds(v.GetString(KeyRefresh))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NomadAddr:       strings.TrimSpace(v.GetString(KeyNomadAddr)),
		NomadToken:      strings.TrimSpace(v.GetString(KeyNomadToken)),
		AllocID:         strings.TrimSpace(v.GetString(KeyAllocID)),
		LogDir:          v.GetString(KeyLogDir),
		OutputFile:      v.GetString(KeyOutputFile),
		LokiEndpoint:    v.GetString(KeyLokiEndpoint),
		RefreshInterval: refresh,
		Continuous:      ParseBool(v.GetString(KeyContinuous)),
		LogLevel:        v.GetString(KeyLogLevel),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
		Tracing: TracingConfig{
			Enabled:    v.GetBool(KeyTracingEnabled),
			Endpoint:   v.GetString(KeyTracingAddr),
			SampleRate: v.GetFloat64(KeyTracingSample),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.NomadAddr == "" {
		return fmt.Errorf("nomad address is required")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log directory is required")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file is required")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", c.RefreshInterval)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	return nil
}

// ParseBool accepts true, 1 and yes in any case; anything else is false
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// parseSeconds reads an integer number of seconds. Values with a unit
// suffix ("90s", "2m") are accepted for config files.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Duration(DefaultRefresh) * time.Second, nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid refresh interval %q: expected seconds", s)
	}
	return d, nil
}
