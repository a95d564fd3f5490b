package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleychat/parley/pkg/llm"
)

func TestNewWithConfig(t *testing.T) {
	config := llm.ChatConfig{
		Provider:     "ollama",
		Model:        "testmodel",
		Temperature:  0.5,
		MaxTokens:    1000,
		SystemPrompt: "Test system prompt",
		BaseURL:      "http://localhost:1234",
	}
	engine, err := llm.NewWithConfig(config)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewWithConfigDefaults(t *testing.T) {
	// A zero config falls back to the local Ollama defaults.
	engine, err := llm.NewWithConfig(llm.ChatConfig{})
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewWithConfigProviders(t *testing.T) {
	tests := []struct {
		name   string
		config llm.ChatConfig
	}{
		{
			name: "anthropic",
			config: llm.ChatConfig{
				Provider: "anthropic",
				Model:    "claude-3-5-sonnet-latest",
				APIKey:   "test-key",
			},
		},
		{
			name: "openai",
			config: llm.ChatConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				APIKey:   "test-key",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			assert.NoError(t, err)
			assert.NotNil(t, engine)
		})
	}
}

func TestNewWithConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		config llm.ChatConfig
	}{
		{name: "temperature too high", config: llm.ChatConfig{Temperature: 2.5}},
		{name: "temperature negative", config: llm.ChatConfig{Temperature: -0.1}},
		{name: "negative max tokens", config: llm.ChatConfig{MaxTokens: -1}},
		{name: "unknown provider", config: llm.ChatConfig{Provider: "bard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			assert.Error(t, err)
			assert.Nil(t, engine)
		})
	}
}
