package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p Provider, req Request) (string, []string, error) {
	t.Helper()
	var deltas []string
	full, err := p.Stream(context.Background(), req, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	return full, deltas, err
}

func TestNew(t *testing.T) {
	p, err := New(context.Background(), &config.LLMConfig{Provider: "ollama", OllamaURL: "http://localhost:11434/", DefaultModel: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "http://localhost:11434", p.(*Ollama).BaseURL)

	p, err = New(context.Background(), &config.LLMConfig{Provider: "openai", OpenAIAPIKey: "sk-test", DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New(context.Background(), &config.LLMConfig{Provider: "gemini", GoogleAPIKey: "test-key", DefaultModel: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	_, err = New(context.Background(), &config.LLMConfig{Provider: "claude"})
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestOllama_Stream(t *testing.T) {
	var got OllamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		for _, part := range []string{"The ", "plan", "."} {
			_, _ = fmt.Fprintf(w, `{"model":"llama3","message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		_, _ = fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "llama3")
	full, deltas, err := collect(t, p, Request{
		System:      "You plan queries.",
		Messages:    []Message{{Role: RoleUser, Content: "How many accounts?"}},
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "The plan.", full)
	assert.Equal(t, []string{"The ", "plan", "."}, deltas)

	assert.Equal(t, "llama3", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "How many accounts?", got.Messages[1].Content)
	assert.InDelta(t, 0.2, got.Options["temperature"], 0.0001)
}

func TestOllama_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()
		_, _, err := collect(t, NewOllama(srv.URL, "missing"), Request{})
		assert.ErrorContains(t, err, "model not found")
	})

	t.Run("stream error line", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"par"},"done":false}`)
			_, _ = fmt.Fprintln(w, `{"error":"out of memory"}`)
		}))
		defer srv.Close()
		full, _, err := collect(t, NewOllama(srv.URL, "m"), Request{})
		assert.ErrorContains(t, err, "out of memory")
		assert.Equal(t, "par", full)
	})

	t.Run("callback aborts", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"a"},"done":false}`)
			_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"b"},"done":false}`)
		}))
		defer srv.Close()
		stop := errors.New("client gone")
		_, err := NewOllama(srv.URL, "m").Stream(context.Background(), Request{}, func(string) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestOllama_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Ollama is running")
	}))
	defer srv.Close()
	assert.NoError(t, NewOllama(srv.URL, "m").Ping(context.Background()))

	srv.Close()
	assert.Error(t, NewOllama(srv.URL, "m").Ping(context.Background()))
}

func TestOpenAI_Stream(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"There are ", "1746", " accounts."} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", srv.URL+"/v1/", "gpt-4o-mini")
	full, deltas, err := collect(t, p, Request{
		System: "Answer briefly.",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "How many accounts?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "There are 1746 accounts.", full)
	assert.Len(t, deltas, 3)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestGemini_Stream(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Gold ", "is the top tier."} {
			_, _ = fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", part)
		}
	}))
	defer srv.Close()

	p, err := NewGemini(context.Background(), "test-key", srv.URL, "gemini-2.0-flash")
	require.NoError(t, err)

	full, deltas, err := collect(t, p, Request{
		System:   "You answer questions.",
		Messages: []Message{{Role: RoleUser, Content: "Top tier?"}, {Role: RoleAssistant, Content: "Checking."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Gold is the top tier.", full)
	assert.Equal(t, []string{"Gold ", "is the top tier."}, deltas)
	assert.True(t, strings.HasSuffix(path, "models/gemini-2.0-flash:streamGenerateContent"), path)

	contents := body["contents"].([]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.NotNil(t, body["systemInstruction"])
}

func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents([]Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "a", contents[1].Parts[0].Text)
}
