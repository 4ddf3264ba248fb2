// Package config defines the process configuration and loads it from a
// YAML file, BUENOBOT_* environment variables and command line flags.
package config

import (
	"strings"
	"time"
)

// Config represents the top-level configuration.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AI        AIConfig        `mapstructure:"ai"`
	Evidence  EvidenceConfig  `mapstructure:"evidence"`
	Checks    ChecksConfig    `mapstructure:"checks"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// ScanConfig holds the defaults for a scan invocation.
type ScanConfig struct {
	Profile        string        `mapstructure:"profile" validate:"oneof=quick full"`
	Environment    string        `mapstructure:"environment" validate:"required"`
	WorkDir        string        `mapstructure:"work_dir"`
	BaseURL        string        `mapstructure:"base_url" validate:"omitempty,url"`
	Trigger        string        `mapstructure:"trigger"`
	Commit         string        `mapstructure:"commit"`
	SaveInterval   time.Duration `mapstructure:"save_interval" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// ContractsConfig locates contract definitions and tunes their validation.
type ContractsConfig struct {
	Dir         string            `mapstructure:"dir" validate:"required"`
	Concurrency int               `mapstructure:"concurrency" validate:"min=1,max=64"`
	RateLimit   float64           `mapstructure:"rate_limit" validate:"min=0"`
	Burst       int               `mapstructure:"burst" validate:"min=0"`
	Headers     map[string]string `mapstructure:"headers"`
	// TestParams maps "METHOD:/path" to the request parameters used when
	// validating that contract.
	TestParams map[string]map[string]any `mapstructure:"test_params"`
}

// ParamsByKey returns TestParams keyed by canonical contract key. Keys read
// through viper are lowercased, so the method part is restored here.
func (c ContractsConfig) ParamsByKey() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.TestParams))
	for k, v := range c.TestParams {
		method, path, ok := strings.Cut(k, ":")
		if !ok {
			out[k] = v
			continue
		}
		out[strings.ToUpper(method)+":"+path] = v
	}
	return out
}

// StorageConfig controls report persistence.
type StorageConfig struct {
	ReportsDir string `mapstructure:"reports_dir" validate:"required"`
	Compress   bool   `mapstructure:"compress"`
}

// AIConfig controls the enrichment gateway.
type AIConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CacheEnabled       bool          `mapstructure:"cache_enabled"`
	CacheDir           string        `mapstructure:"cache_dir" validate:"required_if=CacheEnabled true"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	Mode               string        `mapstructure:"mode" validate:"oneof=quick standard deep"`
	RouteCritical      bool          `mapstructure:"route_critical"`
	RouteComplex       bool          `mapstructure:"route_complex"`
	ComplexityTriggers []string      `mapstructure:"complexity_triggers"`
	FindingsThreshold  int           `mapstructure:"findings_threshold" validate:"min=0"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retry              RetryConfig   `mapstructure:"retry"`
	LocalEngine        string        `mapstructure:"local_engine" validate:"required"`
	// Engines lists every configured engine. Cloud engines are preferred
	// in the order they appear.
	Engines []EngineConfig `mapstructure:"engines" validate:"dive"`
}

// RetryConfig is the per-engine retry policy.
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries" validate:"max=10"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Jitter          float64       `mapstructure:"jitter" validate:"min=0,max=1"`
}

// EngineKind selects the wire protocol of an engine.
type EngineKind string

const (
	EngineKindChat     EngineKind = "chat"
	EngineKindMessages EngineKind = "messages"
	EngineKindGenerate EngineKind = "generate"
	EngineKindMock     EngineKind = "mock"
)

// EngineConfig describes one AI engine.
type EngineConfig struct {
	Name    string     `mapstructure:"name" validate:"required"`
	Kind    EngineKind `mapstructure:"kind" validate:"oneof=chat messages generate mock"`
	BaseURL string     `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string     `mapstructure:"model"`
	// APIKeyEnv names the environment variable holding the API key. Cloud
	// engines without a key are not offered to the router.
	APIKeyEnv   string        `mapstructure:"api_key_env"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"min=0"`
	Temperature float64       `mapstructure:"temperature" validate:"min=0,max=2"`
}

// EvidenceConfig caps the size of evidence packs.
type EvidenceConfig struct {
	MaxFindings    int `mapstructure:"max_findings" validate:"min=1"`
	MaxPerCategory int `mapstructure:"max_per_category" validate:"min=1"`
}

// ChecksConfig tunes the built-in checks.
type ChecksConfig struct {
	HealthPath   string `mapstructure:"health_path" validate:"required,startswith=/"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes" validate:"min=1"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	Probability float64 `mapstructure:"probability" validate:"min=0,max=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}
