package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
version: "0.4.0"
providers:
  copilot:
    type: openai
    base_url: http://localhost:8080
    api_key: dummy
    timeout: 30s
models:
  gpt-5-mini:
    provider: copilot
    model: gpt-5-mini
    temperature: 0.2
    max_tokens: 2048
    default: true
workspace:
  root: /tmp/workspace
  allow_write: true
pipeline:
  max_tool_steps: 4
`

	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "copilot", cfg.Models["gpt-5-mini"].Provider)
	require.Equal(t, "/tmp/workspace", cfg.Workspace.Root)
	require.Equal(t, 4, cfg.Pipeline.MaxToolSteps)
	require.Equal(t, 20, cfg.Workspace.SearchMaxResults)
	require.Equal(t, ":8765", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
providers:
  copilot:
    type: mock
models:
  gpt-5-mini:
    provider: copilot
    default: true
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	t.Setenv("COPILOT_PIPELINE_MAX_TOOL_STEPS", "9")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Pipeline.MaxToolSteps)
}

func TestValidateFailsOnUnknownProvider(t *testing.T) {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"copilot": {Type: "openai"},
		},
		Models: map[string]ModelConfig{
			"broken": {Provider: "missing", Default: true},
		},
	}

	require.Error(t, cfg.Validate())
}

func TestValidateFailsWithoutDefaultModel(t *testing.T) {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"copilot": {Type: "openai"},
		},
		Models: map[string]ModelConfig{
			"gpt-5-mini": {Provider: "copilot"},
		},
		Workspace: WorkspaceConfig{SearchMaxResults: 20, MaxFileBytes: 1024},
		Pipeline:  PipelineConfig{MaxToolSteps: 4, RequestTimeoutSeconds: 60},
	}

	require.Error(t, cfg.Validate())
}
