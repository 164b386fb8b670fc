// Package session keeps per-connection conversation state: the events
// exchanged so far and the key/value state the pipeline agents read and
// write.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Author of a user message event. Agent events carry the agent name.
const AuthorUser = "user"

// Event is one message in a session.
type Event struct {
	ID         string         `json:"id"`
	Author     string         `json:"author"`
	Content    string         `json:"content"`
	Partial    bool           `json:"partial,omitempty"`
	StateDelta map[string]any `json:"state_delta,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Session is a snapshot of a stored session.
type Session struct {
	ID         string         `json:"id"`
	AppName    string         `json:"app_name"`
	UserID     string         `json:"user_id"`
	State      map[string]any `json:"state"`
	Events     []Event        `json:"events"`
	LastUpdate time.Time      `json:"last_update"`
}

// Service stores sessions.
type Service interface {
	Create(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*Session, error)
	Get(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	// AppendEvent records ev and applies its StateDelta to both the stored
	// session and s. Partial events only update s.Events in memory.
	AppendEvent(ctx context.Context, s *Session, ev Event) (Event, error)
	Delete(ctx context.Context, appName, userID, sessionID string) error
	List(ctx context.Context, appName string) ([]*Session, error)
}

// Mirror receives a copy of every committed state. cache.DB implements it.
type Mirror interface {
	SaveSessionState(sessionID string, state map[string]any, ttl time.Duration) error
	DeleteSessionState(sessionID string) error
}
