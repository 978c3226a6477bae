package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds shockwatch configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Explain   ExplainConfig   `yaml:"explain"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	// APIKeys guard the assessment endpoints. Empty list = open access,
	// e.g. behind a hospital-network reverse proxy that does its own auth.
	APIKeys []string `yaml:"api_keys"`
	// ExplainTimeout bounds one request's attribution computation, the
	// only stage with data-dependent latency.
	ExplainTimeout    time.Duration `yaml:"explain_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

type ModelConfig struct {
	// BundleDir holds model.onnx, feature_names.json and bundle.yaml.
	BundleDir string `yaml:"bundle_dir"`
}

type ExplainConfig struct {
	Permutations int     `yaml:"permutations"` // sampling budget per explanation
	Seed         int64   `yaml:"seed"`
	Tolerance    float64 `yaml:"tolerance"` // additivity check bound
}

type AuditConfig struct {
	// FilePath appends one JSONL event per assessment when set.
	FilePath string `yaml:"file_path"`
	// WebhookURL POSTs each event as JSON when set.
	WebhookURL string `yaml:"webhook_url"`
	// SQLitePath stores assessments for the recent-history endpoint when set.
	SQLitePath string `yaml:"sqlite_path"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP HTTP endpoint, e.g. "localhost:4318"
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ExplainTimeout <= 0 {
		cfg.Server.ExplainTimeout = 30 * time.Second
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		// Must outlast the explain timeout or responses get cut off.
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Model.BundleDir == "" {
		cfg.Model.BundleDir = "bundle"
	}

	if cfg.Explain.Permutations <= 0 {
		cfg.Explain.Permutations = 64
	}
	if cfg.Explain.Seed == 0 {
		cfg.Explain.Seed = 1
	}
	if cfg.Explain.Tolerance <= 0 {
		cfg.Explain.Tolerance = 1e-4
	}
}
