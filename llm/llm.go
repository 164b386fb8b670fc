// Package llm streams chat completions from the configured model provider.
package llm

import (
	"context"
	"fmt"

	"github.com/EasterCompany/dex-sylvr-service/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. Model falls back to the provider default.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float32
}

// Provider streams a completion, calling onDelta for every text fragment,
// and returns the full text. An error from onDelta aborts the stream.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error)
	Ping(ctx context.Context) error
}

// New returns the provider selected by cfg.Provider.
func New(ctx context.Context, cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.GoogleAPIKey, "", cfg.DefaultModel)
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.DefaultModel), nil
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
