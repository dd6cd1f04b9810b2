package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LEGAL_LLM_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 500, cfg.LLM.Generation.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Generation.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, DefaultSystemPrompt, cfg.LLM.Prompt.System)
	assert.Equal(t, DefaultFallback, cfg.LLM.Prompt.Fallback)
	assert.Equal(t, 500*time.Millisecond, cfg.Upload.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.Upload.SettleDelay)
	assert.Equal(t, 8*time.Second, cfg.Upload.MaxDuration)
	assert.Equal(t, 30*time.Minute, cfg.Assistant.SessionTTL)
	assert.Empty(t, cfg.Upload.Seed)
	assert.InDelta(t, 15.0, cfg.Upload.MaxIncrement, 1e-9)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
llm:
  model: "gpt-4"
  timeout: "5s"
upload:
  settle_delay: "250ms"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("LEGAL_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Upload.SettleDelay)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	// 未在文件中出现的键保持默认值
	assert.Equal(t, 500, cfg.LLM.Generation.MaxTokens)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRepositoryConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LEGAL_LLM_API_KEY", "")

	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.Assistant.SessionTTL)
	require.Len(t, cfg.Assistant.Guidance.Actions, 3)
	assert.Equal(t, "high", cfg.Assistant.Guidance.Actions[0].Priority)
	assert.Len(t, cfg.Assistant.Guidance.Resources, 4)

	require.Len(t, cfg.Upload.Seed, 2)
	assert.Equal(t, "Employment_Contract_TechCorp.pdf", cfg.Upload.Seed[0].Name)
	assert.Equal(t, int64(2400000), cfg.Upload.Seed[0].Size)
	assert.Equal(t, time.Hour, cfg.Upload.Seed[0].Age)
	assert.Equal(t, "processing", cfg.Upload.Seed[1].Status)
	assert.InDelta(t, 68.0, cfg.Upload.Seed[1].Progress, 1e-9)
}
