package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "BUENOBOT"

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files, environment
// variables, or remote configuration services.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying source.
	// It returns the parsed configuration or an error if loading fails.
	Load(ctx context.Context) (*Config, error)
}

// ViperLoader layers defaults, an optional config file, environment
// variables and explicitly set flags, in increasing precedence.
type ViperLoader struct {
	path     string
	flags    *pflag.FlagSet
	bindings map[string]string
	getenv   func(string) string
}

var _ Loader = (*ViperLoader)(nil)

// LoaderOption configures a ViperLoader.
type LoaderOption func(*ViperLoader)

// WithConfigFile reads path, which may be YAML, JSON or TOML.
func WithConfigFile(path string) LoaderOption { return func(l *ViperLoader) { l.path = path } }

// WithFlags binds flags to config keys. bindings maps a flag name to its
// dotted config key, e.g. "base-url" to "scan.base_url".
func WithFlags(flags *pflag.FlagSet, bindings map[string]string) LoaderOption {
	return func(l *ViperLoader) {
		l.flags = flags
		l.bindings = bindings
	}
}

// NewViperLoader creates a ViperLoader.
func NewViperLoader(opts ...LoaderOption) *ViperLoader {
	l := new(ViperLoader)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader.
func (l *ViperLoader) Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for name, key := range l.bindings {
		f := l.flags.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("flag %q is not defined", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag %q: %w", name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	names := make(map[string]struct{}, len(cfg.AI.Engines))
	for _, e := range cfg.AI.Engines {
		if _, dup := names[e.Name]; dup {
			errs = append(errs, fmt.Errorf("ai engine %q is defined twice", e.Name))
		}
		names[e.Name] = struct{}{}
		if e.Kind != EngineKindMock && e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("ai engine %q: base_url is required", e.Name))
		}
	}
	if _, ok := names[cfg.AI.LocalEngine]; !ok && cfg.AI.LocalEngine != string(EngineKindMock) {
		errs = append(errs, fmt.Errorf("ai local_engine %q is not a configured engine", cfg.AI.LocalEngine))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.profile", "quick")
	v.SetDefault("scan.environment", "local")
	v.SetDefault("scan.work_dir", ".")
	v.SetDefault("scan.base_url", "")
	v.SetDefault("scan.trigger", "manual")
	v.SetDefault("scan.commit", "")
	v.SetDefault("scan.save_interval", "2s")
	v.SetDefault("scan.request_timeout", "30s")

	v.SetDefault("contracts.dir", "contracts")
	v.SetDefault("contracts.concurrency", 4)
	v.SetDefault("contracts.rate_limit", 0)
	v.SetDefault("contracts.burst", 0)

	v.SetDefault("storage.reports_dir", ".buenobot/reports")
	v.SetDefault("storage.compress", false)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.cache_enabled", true)
	v.SetDefault("ai.cache_dir", ".buenobot/ai_cache")
	v.SetDefault("ai.cache_ttl", "168h")
	v.SetDefault("ai.mode", "standard")
	v.SetDefault("ai.route_critical", true)
	v.SetDefault("ai.route_complex", true)
	v.SetDefault("ai.complexity_triggers", []string{
		"hardcoded_credentials", "sql_injection_risk", "credentials_in_query_params",
	})
	v.SetDefault("ai.findings_threshold", 10)
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.retry.max_retries", 1)
	v.SetDefault("ai.retry.initial_interval", "500ms")
	v.SetDefault("ai.retry.max_interval", "5s")
	v.SetDefault("ai.retry.jitter", 0.5)
	v.SetDefault("ai.local_engine", "mock")

	v.SetDefault("evidence.max_findings", 20)
	v.SetDefault("evidence.max_per_category", 10)

	v.SetDefault("checks.health_path", "/health")
	v.SetDefault("checks.max_file_bytes", 1<<20)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "buenobot")
	v.SetDefault("telemetry.probability", 0.1)

	v.SetDefault("log.level", "info")
}
