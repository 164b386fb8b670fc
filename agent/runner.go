package agent

import (
	"context"
	"fmt"

	"github.com/EasterCompany/dex-sylvr-service/llm"
	"github.com/EasterCompany/dex-sylvr-service/session"
)

// Runner feeds user messages through a pipeline for one app.
type Runner struct {
	AppName      string
	Agent        *Sequential
	Sessions     session.Service
	Provider     llm.Provider
	Temperature  float32
	HistoryTurns int
}

// Run records message in the session, runs the pipeline and passes every
// partial and final event to emit. Final agent outputs end up in the
// session state.
func (r *Runner) Run(ctx context.Context, userID, sessionID, message string, emit func(session.Event) error) error {
	sess, err := r.Sessions.Get(ctx, r.AppName, userID, sessionID)
	if err != nil {
		return err
	}

	history := r.history(sess.Events)

	if _, err := r.Sessions.AppendEvent(ctx, sess, session.Event{Author: session.AuthorUser, Content: message}); err != nil {
		return fmt.Errorf("could not record message: %w", err)
	}

	return r.Agent.Run(ctx, &Invocation{
		Provider:    r.Provider,
		Sessions:    r.Sessions,
		Session:     sess,
		History:     history,
		UserMessage: message,
		Temperature: r.Temperature,
		Emit:        emit,
	})
}

// history pairs earlier user messages with the pipeline's answers, keeping
// the last HistoryTurns turns.
func (r *Runner) history(events []session.Event) []llm.Message {
	if r.HistoryTurns <= 0 {
		return nil
	}
	answerer := ""
	if last := r.Agent.Last(); last != nil {
		answerer = last.Name
	}

	var turns [][]llm.Message
	for _, ev := range events {
		switch ev.Author {
		case session.AuthorUser:
			turns = append(turns, []llm.Message{{Role: llm.RoleUser, Content: ev.Content}})
		case answerer:
			if n := len(turns); n > 0 && len(turns[n-1]) == 1 {
				turns[n-1] = append(turns[n-1], llm.Message{Role: llm.RoleAssistant, Content: ev.Content})
			}
		}
	}
	if len(turns) > r.HistoryTurns {
		turns = turns[len(turns)-r.HistoryTurns:]
	}

	var out []llm.Message
	for _, t := range turns {
		out = append(out, t...)
	}
	return out
}
