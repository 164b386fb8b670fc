package database

import (
	"encoding/base64"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeDocument converts a decoded BSON document into plain Go values
// that encode cleanly as JSON for prompts and websocket replies.
func NormalizeDocument(doc bson.D) map[string]any {
	out := make(map[string]any, len(doc))
	for _, e := range doc {
		out[e.Key] = NormalizeValue(e.Value)
	}
	return out
}

// NormalizeValue converts one BSON value. ObjectIDs become hex strings,
// dates become RFC3339 strings and decimals keep their exact text form.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		return NormalizeDocument(val)
	case bson.M:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = NormalizeValue(inner)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = NormalizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = NormalizeValue(inner)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC().Format(time.RFC3339)
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(val.Data)
	case primitive.Regex:
		return val.Pattern
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}
