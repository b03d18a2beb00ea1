package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allEnv lists every variable the loader reads so tests start clean
var allEnv = []string{
	"NOMAD_ADDR", "NOMAD_TOKEN", "NOMAD_ALLOC_ID", "NOMAD_LOG_DIR",
	"ALLOY_DISCOVERY_FILE", "LOKI_ENDPOINT", "REFRESH_INTERVAL", "CONTINUOUS_MODE",
	"LOG_LEVEL", "METRICS_ADDR", "OTEL_TRACING_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_TRACING_SAMPLE_RATE",
}

func newLoader(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	for _, env := range allEnv {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse(args))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newLoader(t))
	require.NoError(t, err)

	assert.Equal(t, DefaultNomadAddr, cfg.NomadAddr)
	assert.Empty(t, cfg.NomadToken)
	assert.Empty(t, cfg.AllocID)
	assert.Equal(t, DefaultLogDir, cfg.LogDir)
	assert.Equal(t, DefaultOutputFile, cfg.OutputFile)
	assert.Equal(t, DefaultLokiEndpoint, cfg.LokiEndpoint)
	assert.Equal(t, 60*time.Second, cfg.RefreshInterval)
	assert.True(t, cfg.Continuous)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	v := newLoader(t)
	t.Setenv("NOMAD_ADDR", "unix:///secrets/api.sock")
	t.Setenv("NOMAD_TOKEN", " s3cret ")
	t.Setenv("NOMAD_ALLOC_ID", "5b1c7a0e")
	t.Setenv("NOMAD_LOG_DIR", "/var/nomad/alloc")
	t.Setenv("ALLOY_DISCOVERY_FILE", "/local/targets.alloy")
	t.Setenv("REFRESH_INTERVAL", "15")
	t.Setenv("CONTINUOUS_MODE", "NO")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "unix:///secrets/api.sock", cfg.NomadAddr)
	assert.Equal(t, "s3cret", cfg.NomadToken)
	assert.Equal(t, "5b1c7a0e", cfg.AllocID)
	assert.Equal(t, "/var/nomad/alloc", cfg.LogDir)
	assert.Equal(t, "/local/targets.alloy", cfg.OutputFile)
	assert.Equal(t, 15*time.Second, cfg.RefreshInterval)
	assert.False(t, cfg.Continuous)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	v := newLoader(t, "--refresh-interval=5", "--continuous-mode=false")
	t.Setenv("REFRESH_INTERVAL", "30")
	t.Setenv("CONTINUOUS_MODE", "true")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval)
	assert.False(t, cfg.Continuous)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
nomad_addr: "https://nomad.service.consul:4646"
log_dir: "/data/alloc"
refresh_interval: 2m
continuous_mode: false
metrics_addr: "0.0.0.0:9464"
tracing:
  enabled: true
  endpoint: "otel-collector:4317"
  sample_rate: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := newLoader(t, "--config="+path)
	t.Setenv("NOMAD_LOG_DIR", "/env/alloc")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://nomad.service.consul:4646", cfg.NomadAddr)
	assert.Equal(t, "/env/alloc", cfg.LogDir, "environment wins over the config file")
	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval)
	assert.False(t, cfg.Continuous)
	assert.Equal(t, "0.0.0.0:9464", cfg.MetricsAddr)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(newLoader(t, "--config="+filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLoad_InvalidRefreshInterval(t *testing.T) {
	v := newLoader(t)
	t.Setenv("REFRESH_INTERVAL", "soon")

	_, err := Load(v)
	assert.ErrorContains(t, err, "invalid refresh interval")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			NomadAddr:       DefaultNomadAddr,
			LogDir:          DefaultLogDir,
			OutputFile:      DefaultOutputFile,
			RefreshInterval: time.Minute,
			Tracing:         TracingConfig{SampleRate: 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"empty address":     func(c *Config) { c.NomadAddr = "" },
		"empty log dir":     func(c *Config) { c.LogDir = "" },
		"empty output":      func(c *Config) { c.OutputFile = "" },
		"zero refresh":      func(c *Config) { c.RefreshInterval = 0 },
		"negative refresh":  func(c *Config) { c.RefreshInterval = -time.Second },
		"sample rate above": func(c *Config) { c.Tracing.SampleRate = 1.5 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "yes", "Yes", " true "} {
		assert.True(t, ParseBool(s), s)
	}
	for _, s := range []string{"false", "0", "no", "", "enabled", "y"} {
		assert.False(t, ParseBool(s), s)
	}
}
