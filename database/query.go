package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrInvalidQuery wraps every rejection of a generated query.
var ErrInvalidQuery = errors.New("invalid query")

const (
	OpFind      = "find"
	OpAggregate = "aggregate"
	OpCount     = "count"
	OpDistinct  = "distinct"
)

// forbiddenOperators write data or run server-side JavaScript.
var forbiddenOperators = map[string]bool{
	"$out":         true,
	"$merge":       true,
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

var validate = validator.New()

// QuerySpec is the read-only query the query builder agent emits.
type QuerySpec struct {
	Collection string   `bson:"collection" json:"collection" validate:"required"`
	Operation  string   `bson:"operation" json:"operation" validate:"required,oneof=find aggregate count distinct"`
	Filter     bson.D   `bson:"filter,omitempty" json:"filter,omitempty"`
	Projection bson.D   `bson:"projection,omitempty" json:"projection,omitempty"`
	Sort       bson.D   `bson:"sort,omitempty" json:"sort,omitempty"`
	Limit      int64    `bson:"limit,omitempty" json:"limit,omitempty" validate:"min=0"`
	Pipeline   []bson.D `bson:"pipeline,omitempty" json:"pipeline,omitempty"`
	Field      string   `bson:"field,omitempty" json:"field,omitempty"`
}

// QueryResult is what Execute hands back to the pipeline.
type QueryResult struct {
	Collection string           `json:"collection"`
	Operation  string           `json:"operation"`
	Documents  []map[string]any `json:"documents,omitempty"`
	Values     []any            `json:"values,omitempty"`
	Count      int64            `json:"count"`
	Truncated  bool             `json:"truncated,omitempty"`
}

// ExtractJSON pulls the JSON object out of model output: a fenced block if
// present, otherwise the span from the first '{' to the last '}'.
func ExtractJSON(text string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", ErrInvalidQuery)
	}
	return text[start : end+1], nil
}

// ParseQuerySpec extracts, decodes and validates a QuerySpec from model
// output. Limits above maxResults, or unset, are clamped to maxResults.
func ParseQuerySpec(text string, maxResults int) (*QuerySpec, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var spec QuerySpec
	if err := bson.UnmarshalExtJSON([]byte(raw), false, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	spec.Operation = strings.ToLower(strings.TrimSpace(spec.Operation))
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if maxResults > 0 && (spec.Limit == 0 || spec.Limit > int64(maxResults)) {
		spec.Limit = int64(maxResults)
	}
	return &spec, nil
}

// Validate checks the shape of the spec and rejects write or script operators.
func (q *QuerySpec) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if strings.HasPrefix(q.Collection, "system.") || strings.ContainsAny(q.Collection, "$\x00") {
		return fmt.Errorf("%w: collection %q is not allowed", ErrInvalidQuery, q.Collection)
	}
	switch q.Operation {
	case OpAggregate:
		if len(q.Pipeline) == 0 {
			return fmt.Errorf("%w: aggregate requires a pipeline", ErrInvalidQuery)
		}
	case OpDistinct:
		if q.Field == "" {
			return fmt.Errorf("%w: distinct requires a field", ErrInvalidQuery)
		}
	}
	for _, stage := range q.Pipeline {
		if op := findForbidden(stage); op != "" {
			return fmt.Errorf("%w: operator %s is not allowed", ErrInvalidQuery, op)
		}
	}
	// Projections and sorts accept aggregation expressions too.
	for _, doc := range []bson.D{q.Filter, q.Projection, q.Sort} {
		if op := findForbidden(doc); op != "" {
			return fmt.Errorf("%w: operator %s is not allowed", ErrInvalidQuery, op)
		}
	}
	return nil
}

func findForbidden(v any) string {
	switch val := v.(type) {
	case bson.D:
		for _, e := range val {
			if forbiddenOperators[e.Key] {
				return e.Key
			}
			if op := findForbidden(e.Value); op != "" {
				return op
			}
		}
	case bson.M:
		for k, inner := range val {
			if forbiddenOperators[k] {
				return k
			}
			if op := findForbidden(inner); op != "" {
				return op
			}
		}
	case bson.A:
		for _, inner := range val {
			if op := findForbidden(inner); op != "" {
				return op
			}
		}
	}
	return ""
}

// Execute runs a validated spec against the store's database.
func (s *Store) Execute(ctx context.Context, spec *QuerySpec) (*QueryResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	limit := int(spec.Limit)
	if limit <= 0 || limit > s.maxResults {
		limit = s.maxResults
	}
	filter := spec.Filter
	if filter == nil {
		filter = bson.D{}
	}
	coll := s.db.Collection(spec.Collection)
	result := &QueryResult{Collection: spec.Collection, Operation: spec.Operation}

	switch spec.Operation {
	case OpFind:
		opts := options.Find().SetLimit(int64(limit + 1))
		if len(spec.Projection) > 0 {
			opts.SetProjection(spec.Projection)
		}
		if len(spec.Sort) > 0 {
			opts.SetSort(spec.Sort)
		}
		cursor, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("find on %s failed: %w", spec.Collection, err)
		}
		if err := fillDocuments(ctx, result, cursor, limit); err != nil {
			return nil, fmt.Errorf("find on %s failed: %w", spec.Collection, err)
		}

	case OpAggregate:
		pipeline := make(mongo.Pipeline, 0, len(spec.Pipeline))
		pipeline = append(pipeline, spec.Pipeline...)
		cursor, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("aggregate on %s failed: %w", spec.Collection, err)
		}
		if err := fillDocuments(ctx, result, cursor, limit); err != nil {
			return nil, fmt.Errorf("aggregate on %s failed: %w", spec.Collection, err)
		}

	case OpCount:
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("count on %s failed: %w", spec.Collection, err)
		}
		result.Count = n

	case OpDistinct:
		values, err := coll.Distinct(ctx, spec.Field, filter)
		if err != nil {
			return nil, fmt.Errorf("distinct on %s failed: %w", spec.Collection, err)
		}
		if len(values) > limit {
			values = values[:limit]
			result.Truncated = true
		}
		result.Values = make([]any, len(values))
		for i, v := range values {
			result.Values[i] = NormalizeValue(v)
		}
		result.Count = int64(len(values))
	}

	return result, nil
}

func fillDocuments(ctx context.Context, result *QueryResult, cursor *mongo.Cursor, limit int) error {
	docs, more, err := drain(ctx, cursor, limit)
	if err != nil {
		return err
	}
	result.Documents = docs
	result.Count = int64(len(docs))
	result.Truncated = more
	return nil
}
