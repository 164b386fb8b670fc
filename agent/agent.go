// Package agent runs the chat pipeline: a fixed sequence of model calls that
// plan a MongoDB query, build and run it, and answer from its results.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EasterCompany/dex-sylvr-service/llm"
	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/EasterCompany/dex-sylvr-service/metrics"
	"github.com/EasterCompany/dex-sylvr-service/session"
	"go.uber.org/zap"
)

// Tool post-processes the model's text into the agent's output. A returned
// error is shown to the model, which gets another attempt.
type Tool interface {
	Name() string
	Call(ctx context.Context, modelOutput string) (string, error)
}

// Agent is one model call whose result is stored in the session state under
// OutputKey.
type Agent struct {
	Name        string
	Model       string
	Description string
	Instruction string
	OutputKey   string
	Tool        Tool
	// MaxAttempts bounds model calls when Tool rejects the output.
	MaxAttempts int
}

// Sequential runs its sub-agents in order against the same session.
type Sequential struct {
	Name        string
	Description string
	SubAgents   []*Agent
}

// Invocation is the per-message context shared by every agent in a run.
type Invocation struct {
	Provider    llm.Provider
	Sessions    session.Service
	Session     *session.Session
	History     []llm.Message
	UserMessage string
	Temperature float32
	Emit        func(session.Event) error
}

func (inv *Invocation) emit(ev session.Event) error {
	if inv.Emit == nil {
		return nil
	}
	return inv.Emit(ev)
}

// Run executes the agent and commits its final event.
func (a *Agent) Run(ctx context.Context, inv *Invocation) error {
	start := time.Now()
	err := a.run(ctx, inv)
	metrics.Default.ObserveAgent(a.Name, time.Since(start), err)
	return err
}

func (a *Agent) run(ctx context.Context, inv *Invocation) error {
	instruction, err := InjectState(a.Instruction, inv.Session.State)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Name, err)
	}

	messages := make([]llm.Message, 0, len(inv.History)+3)
	messages = append(messages, inv.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: inv.UserMessage})

	attempts := 1
	if a.Tool != nil && a.MaxAttempts > 1 {
		attempts = a.MaxAttempts
	}

	var output string
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := inv.Provider.Stream(ctx, llm.Request{
			Model:       a.Model,
			System:      instruction,
			Messages:    messages,
			Temperature: inv.Temperature,
		}, func(delta string) error {
			return inv.emit(session.Event{Author: a.Name, Content: delta, Partial: true})
		})
		if err != nil {
			return fmt.Errorf("%s: %w", a.Name, err)
		}

		if a.Tool == nil {
			output = text
			break
		}
		result, toolErr := a.Tool.Call(ctx, text)
		if toolErr == nil {
			output = result
			break
		}
		logger.Named("agent").Warn("tool rejected model output",
			zap.String("agent", a.Name),
			zap.String("tool", a.Tool.Name()),
			zap.Int("attempt", attempt),
			zap.Error(toolErr),
		)
		if attempt == attempts {
			b, _ := json.Marshal(map[string]string{"error": toolErr.Error()})
			output = string(b)
			break
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: text},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("%s failed: %v\nReturn a corrected query.", a.Tool.Name(), toolErr)},
		)
	}

	ev := session.Event{
		Author:     a.Name,
		Content:    output,
		StateDelta: map[string]any{a.OutputKey: output},
	}
	ev, err = inv.Sessions.AppendEvent(ctx, inv.Session, ev)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Name, err)
	}
	return inv.emit(ev)
}

// Run executes each sub-agent in order, stopping at the first error.
func (s *Sequential) Run(ctx context.Context, inv *Invocation) error {
	for _, sub := range s.SubAgents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sub.Run(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

// Last is the agent whose output answers the user.
func (s *Sequential) Last() *Agent {
	if len(s.SubAgents) == 0 {
		return nil
	}
	return s.SubAgents[len(s.SubAgents)-1]
}
