package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	for i, key := range cfg.Server.APIKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("server.api_keys[%d] is empty", i)
		}
	}
	if cfg.Server.WriteTimeout < cfg.Server.ExplainTimeout {
		return fmt.Errorf("server.write_timeout (%s) must be at least server.explain_timeout (%s)",
			cfg.Server.WriteTimeout, cfg.Server.ExplainTimeout)
	}

	if strings.TrimSpace(cfg.Model.BundleDir) == "" {
		return errors.New("model.bundle_dir must be set")
	}

	if cfg.Explain.Permutations <= 0 {
		return fmt.Errorf("explain.permutations must be positive, got %d", cfg.Explain.Permutations)
	}
	if cfg.Explain.Tolerance <= 0 {
		return fmt.Errorf("explain.tolerance must be positive, got %v", cfg.Explain.Tolerance)
	}

	if err := validateAuditConfig(cfg.Audit); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateAuditConfig(a AuditConfig) error {
	if a.WebhookURL != "" {
		u, err := url.Parse(a.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("audit.webhook_url is invalid")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("audit.webhook_url must be http or https, got %q", u.Scheme)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	return nil
}
