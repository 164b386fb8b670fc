package agent

import (
	"github.com/EasterCompany/dex-sylvr-service/config"
)

// NewPipeline builds the planner, builder and answerer with any overrides
// from llm.json applied.
func NewPipeline(cfg *config.LLMConfig, exec Executor, maxResults int) *Sequential {
	planner := &Agent{
		Name:        PlannerName,
		Description: plannerDescription,
		Instruction: plannerInstruction,
		OutputKey:   PlanKey,
	}
	builder := &Agent{
		Name:        BuilderName,
		Description: builderDescription,
		Instruction: builderInstruction,
		OutputKey:   ResultsKey,
		Tool:        &QueryTool{Executor: exec, MaxResults: maxResults},
		MaxAttempts: cfg.MaxQueryAttempts,
	}
	answerer := &Agent{
		Name:        AnswererName,
		Description: answererDescription,
		Instruction: answererInstruction,
		OutputKey:   ResponseKey,
	}

	agents := []*Agent{planner, builder, answerer}
	for _, a := range agents {
		a.Model = cfg.DefaultModel
		o, ok := cfg.Agents[a.Name]
		if !ok {
			continue
		}
		if o.Model != "" {
			a.Model = o.Model
		}
		if o.Description != "" {
			a.Description = o.Description
		}
		if o.Instruction != "" {
			a.Instruction = o.Instruction
		}
	}

	return &Sequential{
		Name:        "orchestrator_agent",
		Description: "fetches data from mongodb for the user's question and answers it",
		SubAgents:   agents,
	}
}
