package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: test-token
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Bot.Token)
	assert.Equal(t, 7, cfg.AI.CooldownMinutes)
	assert.Equal(t, []string{"grok", "openai"}, cfg.AI.Priority)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 30, cfg.Storage.MaxMessages)
	assert.True(t, cfg.AI.Grok.Enabled)
	assert.False(t, cfg.AI.OpenAI.Enabled)
}

func TestLoadConfigRequiresToken(t *testing.T) {
	path := writeConfig(t, `
bot:
  update_timeout: 30
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot token is required")
}

func TestLoadConfigRejectsUnknownStorage(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: test-token
storage:
  type: postgres
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestLoadConfigSystemPromptFile(t *testing.T) {
	promptPath := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("Ти — Місько.\n"), 0o644))

	path := writeConfig(t, `
bot:
  token: test-token
ai:
  system_prompt: inline prompt
  system_prompt_file: `+promptPath+`
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Ти — Місько.", cfg.AI.SystemPrompt)
}

func TestLoadConfigSystemPromptFileMissing(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: test-token
ai:
  system_prompt: inline prompt
  system_prompt_file: `+filepath.Join(t.TempDir(), "absent.txt")+`
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "inline prompt", cfg.AI.SystemPrompt)
}
