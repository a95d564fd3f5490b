package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "anthropic"
  model: "claude-3-5-sonnet-latest"
  max_tokens: 1024
  temperature: 0.5
  system_prompt: "You are a helpful assistant."

server:
  port: "9090"
  rate_limit: 2.5
  rate_burst: 5
  allowed_origins:
    - "http://localhost:3000"

history:
  database_url: "postgres://localhost:5432/parley"
  vector_dim: 768
  embed_model: "nomic-embed-text"

ui:
  streaming: true
  theme: "dark"
  word_wrap: 100
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "anthropic", config.LLM.Provider)
	assert.Equal(t, "claude-3-5-sonnet-latest", config.LLM.Model)
	assert.Equal(t, 1024, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, config.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost:5432/parley", config.History.DatabaseURL)
	assert.Equal(t, "nomic-embed-text", config.History.EmbedModel)
	assert.True(t, config.UI.Streaming)
	assert.Equal(t, "dark", config.UI.Theme)

	// Unset fields picked up defaults
	assert.Equal(t, 25, config.Server.MaxBodyMB)
	assert.Equal(t, 5, config.History.SearchLimit)
	assert.Equal(t, 5, config.Server.RateBurst)
}

func TestDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "mistral", config.LLM.Model)
	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, 2000, config.LLM.MaxTokens)
	assert.Equal(t, 0.7, config.LLM.Temperature)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, []string{"*"}, config.Server.AllowedOrigins)
	assert.Equal(t, 768, config.History.VectorDim)
	assert.Equal(t, "auto", config.UI.Theme)
	assert.Equal(t, 80, config.UI.WordWrap)
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	t.Run("defaults are valid", func(t *testing.T) {
		config := &Config{}
		applyDefaults(config)
		assert.Empty(t, config.Validate())
	})

	t.Run("invalid fields reported in order", func(t *testing.T) {
		config := &Config{}
		applyDefaults(config)
		config.LLM.Provider = "bard"
		config.LLM.MaxTokens = 20000
		config.LLM.Temperature = 3.0
		config.LLM.BaseURL = "not a url"
		config.Server.Port = "not-a-port"

		errors := config.Validate()
		require.Len(t, errors, 5)
		assert.Contains(t, errors[0].Error(), "llm.provider")
		assert.Contains(t, errors[1].Error(), "max_tokens must be between 1 and 8192")
		assert.Contains(t, errors[2].Error(), "temperature must be between 0 and 2")
		assert.Contains(t, errors[3].Error(), "invalid base URL")
		assert.Contains(t, errors[4].Error(), "server.port")
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/parley")
	t.Setenv("PORT", "3001")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/parley", config.History.DatabaseURL)
	assert.Equal(t, "3001", config.Server.Port)
}

func TestAPIKeyEnvFollowsProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-oa-test")

	config := &Config{}
	config.LLM.Provider = "anthropic"
	mergeWithEnv(config)
	assert.Equal(t, "sk-ant-test", config.LLM.APIKey)

	config = &Config{}
	config.LLM.Provider = "openai"
	mergeWithEnv(config)
	assert.Equal(t, "sk-oa-test", config.LLM.APIKey)

	// ollama needs no key; neither env var applies
	config = &Config{}
	config.LLM.Provider = "ollama"
	mergeWithEnv(config)
	assert.Empty(t, config.LLM.APIKey)
}
