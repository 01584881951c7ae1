package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_validate_defaults(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 9090},
		Backend: BackendPairConfig{Go: BackendConfig{BaseURL: "http://localhost:8080"}, Baileys: BackendConfig{BaseURL: "http://localhost:8081"}},
		Retry:   RetryConfig{MaxRetries: 3, HealthCacheTTL: 1},
	}

	assert.NoError(t, cfg.validate())
}

func TestConfig_validate_rejectsInvalidPort(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 0},
		Backend: BackendPairConfig{Go: BackendConfig{BaseURL: "http://localhost:8080"}, Baileys: BackendConfig{BaseURL: "http://localhost:8081"}},
		Retry:   RetryConfig{HealthCacheTTL: 1},
	}

	assert.Error(t, cfg.validate())
}

func TestConfig_validate_requiresBothBackendURLs(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 9090},
		Backend: BackendPairConfig{Go: BackendConfig{BaseURL: ""}, Baileys: BackendConfig{BaseURL: "http://localhost:8081"}},
		Retry:   RetryConfig{HealthCacheTTL: 1},
	}

	assert.Error(t, cfg.validate())
}

func TestConfig_validate_auditRequiresDSNWhenEnabled(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 9090},
		Backend: BackendPairConfig{Go: BackendConfig{BaseURL: "http://localhost:8080"}, Baileys: BackendConfig{BaseURL: "http://localhost:8081"}},
		Retry:   RetryConfig{HealthCacheTTL: 1},
		Audit:   AuditConfig{Enabled: true},
	}

	assert.Error(t, cfg.validate())
}

func TestLoad_appliesDefaults(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Backend.Go.BaseURL)
	assert.Equal(t, "http://localhost:8081", cfg.Backend.Baileys.BaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, "PREFER_G", cfg.Routing.DefaultStrategy)
}
