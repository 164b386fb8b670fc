package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama talks to a local Ollama server over its /api/chat NDJSON stream.
type Ollama struct {
	httpClient *http.Client
	BaseURL    string
	Model      string
}

type OllamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type OllamaStreamResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}

func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		httpClient: &http.Client{},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Stream(ctx context.Context, req Request, onDelta func(string) error) (string, error) {
	model := req.Model
	if model == "" {
		model = o.Model
	}
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	payload, err := json.Marshal(OllamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Options:  map[string]any{"temperature": req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request to ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned non-200 status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var chunk OllamaStreamResponse
			if jsonErr := json.Unmarshal(line, &chunk); jsonErr != nil {
				return full.String(), fmt.Errorf("failed to decode ollama stream: %w", jsonErr)
			}
			if chunk.Error != "" {
				return full.String(), fmt.Errorf("ollama: %s", chunk.Error)
			}
			if delta := chunk.Message.Content; delta != "" {
				full.WriteString(delta)
				if cbErr := onDelta(delta); cbErr != nil {
					return full.String(), cbErr
				}
			}
			if chunk.Done {
				return full.String(), nil
			}
		}
		if err == io.EOF {
			return full.String(), nil
		}
		if err != nil {
			return full.String(), fmt.Errorf("error reading stream: %w", err)
		}
	}
}

// Ping checks the server answers on its root URL.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %s", resp.Status)
	}
	return nil
}
