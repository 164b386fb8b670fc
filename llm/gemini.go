package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini streams from the Gemini API.
type Gemini struct {
	client *genai.Client
	Model  string
}

// NewGemini creates a Gemini API client. An empty baseURL uses the public
// endpoint.
func NewGemini(ctx context.Context, apiKey, baseURL, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, Model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Stream(ctx context.Context, req Request, onDelta func(string) error) (string, error) {
	model := req.Model
	if model == "" {
		model = g.Model
	}
	temperature := req.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, toGeminiContents(req.Messages), cfg) {
		if err != nil {
			return full.String(), fmt.Errorf("error reading gemini stream: %w", err)
		}
		if delta := resp.Text(); delta != "" {
			full.WriteString(delta)
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}

// Ping is a no-op; the API key is checked on the first request.
func (g *Gemini) Ping(ctx context.Context) error {
	return nil
}

func toGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return contents
}
