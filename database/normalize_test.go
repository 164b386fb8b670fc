package database

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeDocument(t *testing.T) {
	id := primitive.NewObjectID()
	birth := time.Date(1977, 3, 2, 2, 20, 31, 0, time.UTC)
	dec, err := primitive.ParseDecimal128("1234.50")
	require.NoError(t, err)

	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "name", Value: "Elizabeth Ray"},
		{Key: "birthdate", Value: primitive.NewDateTimeFromTime(birth)},
		{Key: "balance", Value: dec},
		{Key: "accounts", Value: bson.A{int32(371138), int32(324287)}},
		{Key: "tier_and_details", Value: bson.D{
			{Key: "0df078f33aa74a2e9696e0520c1a828a", Value: bson.D{
				{Key: "tier", Value: "Bronze"},
				{Key: "id", Value: id},
			}},
		}},
		{Key: "missing", Value: primitive.Null{}},
	}

	out := NormalizeDocument(doc)

	assert.Equal(t, id.Hex(), out["_id"])
	assert.Equal(t, "1977-03-02T02:20:31Z", out["birthdate"])
	assert.Equal(t, "1234.50", out["balance"])
	assert.Equal(t, []any{int32(371138), int32(324287)}, out["accounts"])
	assert.Nil(t, out["missing"])

	tiers := out["tier_and_details"].(map[string]any)
	inner := tiers["0df078f33aa74a2e9696e0520c1a828a"].(map[string]any)
	assert.Equal(t, "Bronze", inner["tier"])
	assert.Equal(t, id.Hex(), inner["id"])

	_, err = json.Marshal(out)
	assert.NoError(t, err)
}
