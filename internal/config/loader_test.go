package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
scan:
  profile: full
  environment: staging
  base_url: http://api.staging.local
contracts:
  dir: ./contracts
  concurrency: 8
  headers:
    X-Api-Key: secret
  test_params:
    "GET:/api/v1/ventas":
      fecha_desde: "2024-06-01"
ai:
  enabled: true
  mode: deep
  local_engine: ollama
  engines:
    - name: openai
      kind: chat
      base_url: https://api.openai.com
      model: gpt-4o-mini
      api_key_env: OPENAI_API_KEY
    - name: ollama
      kind: generate
      base_url: http://localhost:11434
      model: llama3
      timeout: 2m
storage:
  compress: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buenobot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestViperLoader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewViperLoader().Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "quick", cfg.Scan.Profile)
	assert.Equal(t, 2*time.Second, cfg.Scan.SaveInterval)
	assert.Equal(t, 30*time.Second, cfg.Scan.RequestTimeout)
	assert.Equal(t, 4, cfg.Contracts.Concurrency)
	assert.Equal(t, "mock", cfg.AI.LocalEngine)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, 168*time.Hour, cfg.AI.CacheTTL)
	assert.Equal(t, uint64(1), cfg.AI.Retry.MaxRetries)
	assert.Equal(t, 20, cfg.Evidence.MaxFindings)
	assert.Equal(t, 10, cfg.Evidence.MaxPerCategory)
	assert.Equal(t, "/health", cfg.Checks.HealthPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Contains(t, cfg.AI.ComplexityTriggers, "hardcoded_credentials")
}

func TestViperLoader_File(t *testing.T) {
	t.Parallel()

	cfg, err := NewViperLoader(WithConfigFile(writeConfig(t, sampleYAML))).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Scan.Profile)
	assert.Equal(t, "staging", cfg.Scan.Environment)
	assert.Equal(t, 8, cfg.Contracts.Concurrency)
	assert.Equal(t, "secret", cfg.Contracts.Headers["x-api-key"])
	assert.True(t, cfg.Storage.Compress)
	assert.Equal(t, ".buenobot/reports", cfg.Storage.ReportsDir, "unset keys keep defaults")

	require.Len(t, cfg.AI.Engines, 2)
	assert.Equal(t, EngineKindChat, cfg.AI.Engines[0].Kind)
	assert.Equal(t, "OPENAI_API_KEY", cfg.AI.Engines[0].APIKeyEnv)
	assert.Equal(t, 2*time.Minute, cfg.AI.Engines[1].Timeout)

	params := cfg.Contracts.ParamsByKey()
	require.Contains(t, params, "GET:/api/v1/ventas")
	assert.Equal(t, "2024-06-01", params["GET:/api/v1/ventas"]["fecha_desde"])
}

func TestViperLoader_EnvAndFlags(t *testing.T) {
	t.Setenv("BUENOBOT_SCAN_ENVIRONMENT", "production")
	t.Setenv("BUENOBOT_SCAN_BASE_URL", "http://from-env.local")
	t.Setenv("BUENOBOT_LOG_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("base-url", "", "")
	fs.String("profile", "quick", "")
	require.NoError(t, fs.Parse([]string{"--base-url=http://from-flag.local"}))

	loader := NewViperLoader(
		WithConfigFile(writeConfig(t, sampleYAML)),
		WithFlags(fs, map[string]string{"base-url": "scan.base_url", "profile": "scan.profile"}),
	)
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Scan.Environment, "env beats file")
	assert.Equal(t, "http://from-flag.local", cfg.Scan.BaseURL, "set flag beats env")
	assert.Equal(t, "full", cfg.Scan.Profile, "unset flag does not override file")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestViperLoader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "bad profile", yaml: "scan:\n  profile: weekly\n", wantErr: "Profile"},
		{name: "bad mode", yaml: "ai:\n  mode: turbo\n", wantErr: "Mode"},
		{name: "bad base url", yaml: "scan:\n  base_url: not a url\n", wantErr: "BaseURL"},
		{
			name:    "unknown local engine",
			yaml:    "ai:\n  local_engine: ollama\n",
			wantErr: `local_engine "ollama"`,
		},
		{
			name: "engine without base url",
			yaml: "ai:\n  engines:\n    - name: claude\n      kind: messages\n",
			wantErr: `engine "claude": base_url is required`,
		},
		{
			name: "duplicate engines",
			yaml: "ai:\n  engines:\n    - name: m\n      kind: mock\n    - name: m\n      kind: mock\n",
			wantErr: "defined twice",
		},
		{name: "telemetry without endpoint", yaml: "telemetry:\n  enabled: true\n", wantErr: "Endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewViperLoader(WithConfigFile(writeConfig(t, tt.yaml))).Load(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestViperLoader_MissingFileAndFlag(t *testing.T) {
	t.Parallel()

	_, err := NewViperLoader(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))).Load(context.Background())
	assert.Error(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err = NewViperLoader(WithFlags(fs, map[string]string{"missing": "scan.profile"})).Load(context.Background())
	assert.ErrorContains(t, err, `flag "missing"`)
}

func TestContractsConfig_ParamsByKey(t *testing.T) {
	t.Parallel()

	c := ContractsConfig{TestParams: map[string]map[string]any{
		"post:/api/v1/clientes": {"nombre": "x"},
		"odd":                   {"a": 1},
	}}
	got := c.ParamsByKey()
	assert.Contains(t, got, "POST:/api/v1/clientes")
	assert.Contains(t, got, "odd")
}
