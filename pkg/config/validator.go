package config

import (
	"fmt"
	"net/url"
	"strconv"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"ollama":    true,
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if !validProviders[c.LLM.Provider] {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: "provider must be one of anthropic, openai, ollama",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	// Validate Server config
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be a number between 1 and 65535",
		})
	}

	if c.Server.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Server.RateBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_burst",
			Message: "rate_burst must be positive",
		})
	}

	if c.Server.MaxBodyMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.max_body_mb",
			Message: "max_body_mb must be positive",
		})
	}

	// Validate History config. pgx accepts both URL and key=value DSN
	// forms, so only unparseable input is rejected here.
	if c.History.DatabaseURL != "" {
		if _, err := url.Parse(c.History.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "history.database_url",
				Message: "invalid database URL",
			})
		}
	}

	if c.History.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "history.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.History.SearchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "history.search_limit",
			Message: "search_limit must be positive",
		})
	}

	return errors
}
