package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/parleychat/parley/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider     string // "anthropic", "openai" or "ollama"
	Model        string
	BaseURL      string
	APIKey       string // falls back to the provider's env var when empty
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// ChatEngine generates chat responses through a hosted language model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	// Validate and set default values for config fields if necessary
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}

	model, err := newModel(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

func newModel(config ChatConfig) (llms.Model, error) {
	switch config.Provider {
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, anthropic.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
		}
		return anthropic.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default Ollama URL
		}
		return ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(baseURL))
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}

// Chat sends the conversation to the model and returns the complete response.
func (ce *ChatEngine) Chat(ctx context.Context, messages []models.Message) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, ce.buildContent(messages),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature))
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}
	return response.Choices[0].Content, nil
}

// ChatStream sends the conversation to the model and streams the response as
// it is generated. The returned channel carries one chunk per model delta and
// is closed after a terminal Done or Err chunk.
func (ce *ChatEngine) ChatStream(ctx context.Context, messages []models.Message) (<-chan models.StreamChunk, error) {
	content := ce.buildContent(messages)
	resultChan := make(chan models.StreamChunk)

	go func() {
		defer close(resultChan)

		_, err := ce.llm.GenerateContent(ctx, content,
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case resultChan <- models.StreamChunk{Delta: string(chunk)}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
		if err != nil {
			select {
			case resultChan <- models.StreamChunk{Err: fmt.Errorf("chat error: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case resultChan <- models.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return resultChan, nil
}

// buildContent maps the conversation onto the prompt format the model client
// expects, prepending the configured system prompt when one is set.
func (ce *ChatEngine) buildContent(messages []models.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	if ce.config.SystemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemPrompt))
	}
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case models.RoleAssistant:
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		default:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}
	return content
}
