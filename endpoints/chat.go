package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/EasterCompany/dex-sylvr-service/agent"
	"github.com/EasterCompany/dex-sylvr-service/config"
	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/EasterCompany/dex-sylvr-service/metrics"
	"github.com/EasterCompany/dex-sylvr-service/services"
	"github.com/EasterCompany/dex-sylvr-service/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	invalidJSONReply     = "Error: Invalid JSON format. Please send a valid JSON message."
	missingMessageReply  = `Error: "message" field is required.`
	rateLimitedError     = "rate limit exceeded"
	writeWait            = 10 * time.Second
	maxChatMessageBytes  = 64 * 1024
	frameBacklog         = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Pipeline answers one chat message within a session.
type Pipeline interface {
	Run(ctx context.Context, userID, sessionID, message string, emit func(session.Event) error) error
}

// SampleSource provides the documents a new session is seeded with.
type SampleSource interface {
	SampleDocuments(ctx context.Context, collection string, limit int) ([]map[string]any, error)
	ListCollections(ctx context.Context) ([]string, error)
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

type ChatError struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

type ChatDelta struct {
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	Delta     string `json:"delta"`
}

// ChatHandler serves the /chat websocket.
type ChatHandler struct {
	Pipeline Pipeline
	Sessions session.Service
	Samples  SampleSource
	Config   config.ChatConfig
	Status   *services.StatusServer
}

func (h *ChatHandler) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", err)
		return
	}
	defer func() { _ = ws.Close() }()

	metrics.Default.ChatOpened()
	defer metrics.Default.ChatClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID, err := h.openSession(ctx)
	if err != nil {
		logger.Error("creating chat session", err)
		closeWith(ws, websocket.CloseInternalServerErr, "could not create chat session")
		return
	}
	log := logger.Named("chat").With(zap.String("session_id", sessionID))
	log.Info("chat session started")
	if h.Status != nil {
		h.Status.IncrementChatSessions()
	}
	defer func() {
		if err := h.Sessions.Delete(context.Background(), h.Config.AppName, sessionID, sessionID); err != nil {
			log.Warn("could not delete session", zap.Error(err))
		}
		log.Info("chat session closed")
	}()

	pingEvery := time.Duration(h.Config.PingSeconds) * time.Second
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	pongWait := 2 * pingEvery
	ws.SetReadLimit(maxChatMessageBytes)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go keepAlive(ctx, ws, pingEvery)

	limiter := rate.NewLimiter(rate.Limit(h.Config.MessagesPerSec), h.Config.MessageBurst)

	frames := readFrames(ctx, cancel, ws, pongWait, log)
	for data := range frames {
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		message, stream, reply := parseChatMessage(data)
		if reply != "" {
			if err := writeText(ws, reply); err != nil {
				return
			}
			continue
		}

		if !limiter.Allow() {
			if err := writeJSON(ws, ChatError{SessionID: sessionID, Error: rateLimitedError}); err != nil {
				return
			}
			continue
		}

		summary, runErr := h.answer(ctx, ws, sessionID, message, stream)
		if ctx.Err() != nil {
			log.Info("client left during pipeline run")
			return
		}
		if h.Status != nil {
			h.Status.IncrementPipelineRuns(runErr)
		}
		if runErr != nil {
			var writeErr *writeError
			if errors.As(runErr, &writeErr) {
				return
			}
			log.Error("pipeline failed", zap.Error(runErr))
			if err := writeJSON(ws, ChatError{SessionID: sessionID, Error: runErr.Error()}); err != nil {
				return
			}
			continue
		}
		if err := writeJSON(ws, ChatResponse{SessionID: sessionID, Summary: summary}); err != nil {
			return
		}
	}
}

// readFrames reads the socket on its own goroutine so a disconnect cancels
// ctx even while a pipeline run is in progress. The channel closes when the
// socket does.
func readFrames(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, pongWait time.Duration, log *zap.Logger) <-chan []byte {
	frames := make(chan []byte, frameBacklog)
	go func() {
		defer close(frames)
		defer cancel()
		for {
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					log.Warn("websocket read failed", zap.Error(err))
				}
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames
}

func (h *ChatHandler) openSession(ctx context.Context) (string, error) {
	docs, err := h.Samples.SampleDocuments(ctx, h.Config.SampleCollection, h.Config.SampleSize)
	if err != nil {
		return "", err
	}
	state := map[string]any{agent.SampleKey: docs}
	if names, err := h.Samples.ListCollections(ctx); err == nil {
		state[agent.CollectionsKey] = strings.Join(names, ", ")
	} else {
		logger.Named("chat").Warn("could not list collections", zap.Error(err))
	}

	id := uuid.NewString()
	if _, err := h.Sessions.Create(ctx, h.Config.AppName, id, id, state); err != nil {
		return "", err
	}
	return id, nil
}

// answer runs the pipeline and returns the final response text.
func (h *ChatHandler) answer(ctx context.Context, ws *websocket.Conn, sessionID, message string, stream bool) (string, error) {
	emit := func(ev session.Event) error {
		if !stream || !ev.Partial {
			return nil
		}
		if err := writeJSON(ws, ChatDelta{SessionID: sessionID, Agent: ev.Author, Delta: ev.Content}); err != nil {
			return &writeError{err}
		}
		return nil
	}
	if err := h.Pipeline.Run(ctx, sessionID, sessionID, message, emit); err != nil {
		return "", err
	}

	sess, err := h.Sessions.Get(ctx, h.Config.AppName, sessionID, sessionID)
	if err != nil {
		return "", err
	}
	summary, _ := sess.State[agent.ResponseKey].(string)
	return summary, nil
}

// parseChatMessage returns the message and stream flag, or the text to send
// back when the frame is not a usable request.
func parseChatMessage(data []byte) (message string, stream bool, reply string) {
	if !json.Valid(data) {
		return "", false, invalidJSONReply
	}
	var req struct {
		Message any  `json:"message"`
		Stream  bool `json:"stream"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return "", false, missingMessageReply
	}
	text, ok := req.Message.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", false, missingMessageReply
	}
	return text, req.Stream, ""
}

// writeError marks a failure to write to the socket, which ends the session.
type writeError struct{ err error }

func (e *writeError) Error() string { return "websocket write: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

func writeJSON(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(v)
}

func writeText(ws *websocket.Conn, text string) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func keepAlive(ctx context.Context, ws *websocket.Conn, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
