package endpoints

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/EasterCompany/dex-sylvr-service/agent"
	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/EasterCompany/dex-sylvr-service/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSamples struct {
	docs []map[string]any
	err  error
}

func (f *fakeSamples) SampleDocuments(ctx context.Context, collection string, limit int) ([]map[string]any, error) {
	return f.docs, f.err
}

func (f *fakeSamples) ListCollections(ctx context.Context) ([]string, error) {
	return []string{"accounts", "customers"}, nil
}

// echoPipeline streams the message back in two halves and stores it as the
// response.
type echoPipeline struct {
	sessions session.Service
	appName  string
	states   chan map[string]any
}

func (p *echoPipeline) Run(ctx context.Context, userID, sessionID, message string, emit func(session.Event) error) error {
	if message == "boom" {
		return errors.New("planner: model unavailable")
	}
	sess, err := p.sessions.Get(ctx, p.appName, userID, sessionID)
	if err != nil {
		return err
	}
	if p.states != nil {
		p.states <- sess.State
	}
	half := len(message) / 2
	for _, part := range []string{message[:half], message[half:]} {
		if err := emit(session.Event{Author: agent.AnswererName, Content: part, Partial: true}); err != nil {
			return err
		}
	}
	ev, err := p.sessions.AppendEvent(ctx, sess, session.Event{
		Author:     agent.AnswererName,
		Content:    "echo: " + message,
		StateDelta: map[string]any{agent.ResponseKey: "echo: " + message},
	})
	if err != nil {
		return err
	}
	return emit(ev)
}

// waitingPipeline blocks until its context ends and reports why.
type waitingPipeline struct {
	started chan struct{}
	stopped chan error
}

func (p *waitingPipeline) Run(ctx context.Context, userID, sessionID, message string, emit func(session.Event) error) error {
	close(p.started)
	<-ctx.Done()
	p.stopped <- ctx.Err()
	return ctx.Err()
}

func chatConfig() config.ChatConfig {
	return config.ChatConfig{
		AppName:          "sylvr",
		SampleCollection: "transactions",
		SampleSize:       2,
		MessagesPerSec:   100,
		MessageBurst:     100,
		PingSeconds:      30,
		SessionTTLMins:   60,
	}
}

func startChat(t *testing.T, h *ChatHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewRouter(Deps{Chat: h}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func newChatHandler(sessions session.Service, states chan map[string]any) *ChatHandler {
	cfg := chatConfig()
	return &ChatHandler{
		Pipeline: &echoPipeline{sessions: sessions, appName: cfg.AppName, states: states},
		Sessions: sessions,
		Samples:  &fakeSamples{docs: []map[string]any{{"account_id": 1}}},
		Config:   cfg,
		Status:   newStatus(),
	}
}

func TestChatSummary(t *testing.T) {
	sessions := session.NewInMemoryService()
	states := make(chan map[string]any, 1)
	ws := startChat(t, newChatHandler(sessions, states))

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "how many accounts?"}))

	var resp ChatResponse
	require.NoError(t, ws.ReadJSON(&resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "echo: how many accounts?", resp.Summary)

	state := <-states
	assert.Equal(t, []map[string]any{{"account_id": 1}}, state[agent.SampleKey])
	assert.Equal(t, "accounts, customers", state[agent.CollectionsKey])
}

func TestChatStreamsDeltas(t *testing.T) {
	sessions := session.NewInMemoryService()
	ws := startChat(t, newChatHandler(sessions, nil))

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "abcd", "stream": true}))

	var d1, d2 ChatDelta
	require.NoError(t, ws.ReadJSON(&d1))
	require.NoError(t, ws.ReadJSON(&d2))
	assert.Equal(t, agent.AnswererName, d1.Agent)
	assert.Equal(t, "ab", d1.Delta)
	assert.Equal(t, "cd", d2.Delta)

	var resp ChatResponse
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, d1.SessionID, resp.SessionID)
	assert.Equal(t, "echo: abcd", resp.Summary)
}

func TestChatInvalidInput(t *testing.T) {
	ws := startChat(t, newChatHandler(session.NewInMemoryService(), nil))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("   ")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, invalidJSONReply, string(msg))

	for _, frame := range []string{`{}`, `{"message": ""}`, `{"message": 42}`, `[1,2]`} {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, missingMessageReply, string(msg), frame)
	}
}

func TestChatPipelineErrorKeepsConnection(t *testing.T) {
	ws := startChat(t, newChatHandler(session.NewInMemoryService(), nil))

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "boom"}))
	var chatErr ChatError
	require.NoError(t, ws.ReadJSON(&chatErr))
	assert.Contains(t, chatErr.Error, "model unavailable")

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "again"}))
	var resp ChatResponse
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, "echo: again", resp.Summary)
}

func TestChatRateLimit(t *testing.T) {
	h := newChatHandler(session.NewInMemoryService(), nil)
	h.Config.MessagesPerSec = 0.01
	h.Config.MessageBurst = 1
	ws := startChat(t, h)

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "first"}))
	var resp ChatResponse
	require.NoError(t, ws.ReadJSON(&resp))

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "second"}))
	var chatErr ChatError
	require.NoError(t, ws.ReadJSON(&chatErr))
	assert.Equal(t, rateLimitedError, chatErr.Error)
	assert.Equal(t, resp.SessionID, chatErr.SessionID)
}

func TestChatSampleFailureCloses(t *testing.T) {
	h := newChatHandler(session.NewInMemoryService(), nil)
	h.Samples = &fakeSamples{err: errors.New("mongo down")}
	ws := startChat(t, h)

	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
}

func TestChatDeletesSessionOnClose(t *testing.T) {
	sessions := session.NewInMemoryService()
	ws := startChat(t, newChatHandler(sessions, nil))

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "hi"}))
	var resp ChatResponse
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, 1, sessions.Count())

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, msg))

	require.Eventually(t, func() bool { return sessions.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatDisconnectCancelsRun(t *testing.T) {
	sessions := session.NewInMemoryService()
	h := newChatHandler(sessions, nil)
	pipeline := &waitingPipeline{started: make(chan struct{}), stopped: make(chan error, 1)}
	h.Pipeline = pipeline
	ws := startChat(t, h)

	require.NoError(t, ws.WriteJSON(map[string]any{"message": "count every account"}))
	select {
	case <-pipeline.started:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not start")
	}

	require.NoError(t, ws.Close())

	select {
	case err := <-pipeline.stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline kept running after the client left")
	}
	require.Eventually(t, func() bool { return sessions.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestParseChatMessage(t *testing.T) {
	msg, stream, reply := parseChatMessage([]byte(`{"message":"hi","stream":true}`))
	assert.Equal(t, "hi", msg)
	assert.True(t, stream)
	assert.Empty(t, reply)

	_, _, reply = parseChatMessage([]byte(`{"message":`))
	assert.Equal(t, invalidJSONReply, reply)
}
