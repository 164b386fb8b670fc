package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EasterCompany/dex-sylvr-service/database"
	"github.com/EasterCompany/dex-sylvr-service/metrics"
)

// Executor runs a validated query. database.Store implements it.
type Executor interface {
	Execute(ctx context.Context, spec *database.QuerySpec) (*database.QueryResult, error)
}

// QueryTool parses the builder's query and runs it read-only.
type QueryTool struct {
	Executor   Executor
	MaxResults int
}

func (t *QueryTool) Name() string { return "mongo_query" }

func (t *QueryTool) Call(ctx context.Context, modelOutput string) (string, error) {
	spec, err := database.ParseQuerySpec(modelOutput, t.MaxResults)
	if err != nil {
		metrics.Default.ObserveQuery("invalid", err)
		return "", err
	}
	res, err := t.Executor.Execute(ctx, spec)
	metrics.Default.ObserveQuery(spec.Operation, err)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("could not encode query result: %w", err)
	}
	return string(b), nil
}
