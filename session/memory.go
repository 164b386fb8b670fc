package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/google/uuid"
)

// InMemoryService is a Service backed by a map. State can optionally be
// mirrored to Redis for inspection.
type InMemoryService struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	mirror    Mirror
	mirrorTTL time.Duration
	now       func() time.Time
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// WithMirror copies state to m on every change, expiring after ttl.
func (s *InMemoryService) WithMirror(m Mirror, ttl time.Duration) *InMemoryService {
	s.mirror = m
	s.mirrorTTL = ttl
	return s
}

func key(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}

func (s *InMemoryService) Create(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	k := key(appName, userID, sessionID)

	s.mu.Lock()
	if _, ok := s.sessions[k]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, sessionID)
	}
	stored := &Session{
		ID:         sessionID,
		AppName:    appName,
		UserID:     userID,
		State:      copyState(state),
		Events:     []Event{},
		LastUpdate: s.now(),
	}
	s.sessions[k] = stored
	out := stored.clone()
	s.mu.Unlock()

	s.mirrorState(out)
	return out, nil
}

func (s *InMemoryService) Get(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[key(appName, userID, sessionID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return stored.clone(), nil
}

func (s *InMemoryService) AppendEvent(ctx context.Context, sess *Session, ev Event) (Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	if ev.Partial {
		return ev, nil
	}

	s.mu.Lock()
	stored, ok := s.sessions[key(sess.AppName, sess.UserID, sess.ID)]
	if !ok {
		s.mu.Unlock()
		return ev, fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}
	stored.Events = append(stored.Events, copyEvent(ev))
	for k, v := range ev.StateDelta {
		stored.State[k] = copyValue(v)
	}
	stored.LastUpdate = ev.Timestamp
	var snapshot *Session
	if s.mirror != nil && len(ev.StateDelta) > 0 {
		snapshot = stored.clone()
	}
	s.mu.Unlock()

	sess.Events = append(sess.Events, copyEvent(ev))
	if sess.State == nil {
		sess.State = make(map[string]any)
	}
	for k, v := range ev.StateDelta {
		sess.State[k] = copyValue(v)
	}
	sess.LastUpdate = ev.Timestamp

	if snapshot != nil {
		s.mirrorState(snapshot)
	}
	return ev, nil
}

func (s *InMemoryService) Delete(ctx context.Context, appName, userID, sessionID string) error {
	k := key(appName, userID, sessionID)
	s.mu.Lock()
	_, ok := s.sessions[k]
	delete(s.sessions, k)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if s.mirror != nil {
		if err := s.mirror.DeleteSessionState(sessionID); err != nil {
			logger.Error("deleting mirrored session state", err)
		}
	}
	return nil
}

// List returns the sessions of appName, most recently updated first.
func (s *InMemoryService) List(ctx context.Context, appName string) ([]*Session, error) {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, stored := range s.sessions {
		if stored.AppName == appName {
			out = append(out, stored.clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdate.After(out[j].LastUpdate) })
	return out, nil
}

// Count is the number of live sessions across all apps.
func (s *InMemoryService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemoryService) mirrorState(sess *Session) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SaveSessionState(sess.ID, sess.State, s.mirrorTTL); err != nil {
		logger.Error("mirroring session state", err)
	}
}

func (sess *Session) clone() *Session {
	out := *sess
	out.State = copyState(sess.State)
	out.Events = make([]Event, len(sess.Events))
	for i, ev := range sess.Events {
		out.Events[i] = copyEvent(ev)
	}
	return &out
}

func copyEvent(ev Event) Event {
	if ev.StateDelta != nil {
		ev.StateDelta = copyState(ev.StateDelta)
	}
	return ev
}

func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue copies the map and slice shapes JSON-like state is built from.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyState(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, inner := range val {
			out[i] = copyState(inner)
		}
		return out
	default:
		return v
	}
}
