package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced block",
			in:   "Here is the query:\n```json\n{\"collection\": \"customers\"}\n```\nDone.",
			want: `{"collection": "customers"}`,
		},
		{
			name: "bare object with prose",
			in:   `I will run {"collection": "accounts", "operation": "count"} now.`,
			want: `{"collection": "accounts", "operation": "count"}`,
		},
		{
			name: "fence without language",
			in:   "```\n{\"a\": {\"b\": 1}}\n```",
			want: `{"a": {"b": 1}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ExtractJSON("no query here")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParseQuerySpec_Find(t *testing.T) {
	text := "```json\n" + `{
		"collection": "customers",
		"operation": "FIND",
		"filter": {"active": true, "tier_and_details": {"$exists": true}},
		"projection": {"name": 1, "email": 1},
		"sort": {"birthdate": -1, "name": 1},
		"limit": 500
	}` + "\n```"

	spec, err := ParseQuerySpec(text, 50)
	require.NoError(t, err)

	assert.Equal(t, "customers", spec.Collection)
	assert.Equal(t, OpFind, spec.Operation)
	assert.Equal(t, int64(50), spec.Limit)
	require.Len(t, spec.Sort, 2)
	assert.Equal(t, "birthdate", spec.Sort[0].Key)
	assert.Equal(t, "name", spec.Sort[1].Key)
	assert.Equal(t, "active", spec.Filter[0].Key)
	assert.Equal(t, true, spec.Filter[0].Value)
}

func TestParseQuerySpec_AggregateKeepsStageOrder(t *testing.T) {
	text := `{
		"collection": "customers",
		"operation": "aggregate",
		"pipeline": [
			{"$project": {"tiers": {"$objectToArray": "$tier_and_details"}}},
			{"$unwind": {"path": "$tiers", "preserveNullAndEmptyArrays": true}},
			{"$group": {"_id": "$tiers.v.tier", "count": {"$sum": 1}}},
			{"$sort": {"count": -1}}
		]
	}`

	spec, err := ParseQuerySpec(text, 20)
	require.NoError(t, err)

	require.Len(t, spec.Pipeline, 4)
	assert.Equal(t, "$project", spec.Pipeline[0][0].Key)
	assert.Equal(t, "$unwind", spec.Pipeline[1][0].Key)
	assert.Equal(t, "$group", spec.Pipeline[2][0].Key)
	assert.Equal(t, "$sort", spec.Pipeline[3][0].Key)
	assert.Equal(t, int64(20), spec.Limit)
}

func TestParseQuerySpec_Rejections(t *testing.T) {
	tests := []struct {
		name string
		text string
		msg  string
	}{
		{"missing collection", `{"operation": "find"}`, "Collection"},
		{"unknown operation", `{"collection": "c", "operation": "delete"}`, "Operation"},
		{"aggregate without pipeline", `{"collection": "c", "operation": "aggregate"}`, "requires a pipeline"},
		{"distinct without field", `{"collection": "c", "operation": "distinct"}`, "requires a field"},
		{"out stage", `{"collection": "c", "operation": "aggregate", "pipeline": [{"$match": {}}, {"$out": "stolen"}]}`, "$out"},
		{"nested merge", `{"collection": "c", "operation": "aggregate", "pipeline": [{"$facet": {"a": [{"$merge": {"into": "x"}}]}}]}`, "$merge"},
		{"where in filter", `{"collection": "c", "operation": "find", "filter": {"$where": "sleep(1000)"}}`, "$where"},
		{"function in projection", `{"collection": "customers", "operation": "find", "projection": {"x": {"$function": {"body": "function(){return 1}", "args": [], "lang": "js"}}}}`, "$function"},
		{"where in sort", `{"collection": "customers", "operation": "find", "sort": {"$where": 1}}`, "$where"},
		{"accumulator in nested projection", `{"collection": "customers", "operation": "find", "projection": {"a": {"$let": {"vars": {}, "in": {"$accumulator": {}}}}}}`, "$accumulator"},
		{"system collection", `{"collection": "system.users", "operation": "find"}`, "not allowed"},
		{"not json", `{"collection": `, "invalid query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuerySpec(tt.text, 50)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseQuerySpec_KeepsSmallLimit(t *testing.T) {
	spec, err := ParseQuerySpec(`{"collection": "accounts", "operation": "find", "limit": 3}`, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(3), spec.Limit)
}

func TestValidate_DistinctField(t *testing.T) {
	spec := &QuerySpec{Collection: "accounts", Operation: OpDistinct, Field: "products"}
	assert.NoError(t, spec.Validate())

	spec.Filter = bson.D{{Key: "products", Value: bson.D{{Key: "$in", Value: bson.A{"Commodity"}}}}}
	assert.NoError(t, spec.Validate())
}
