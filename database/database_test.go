package database

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newTestStore(mt *mtest.T, maxResults int) *Store {
	return NewStore(mt.Client, &config.MongoConfig{
		Database:        mt.DB.Name(),
		QueryTimeoutSec: 5,
		MaxResults:      maxResults,
	})
}

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sample documents", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		ns := mt.DB.Name() + ".customers"
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: id}, {Key: "username", Value: "fmiller"}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "username", Value: "valenciajennifer"}},
		))

		docs, err := store.SampleDocuments(context.Background(), "customers", 5)
		require.NoError(mt, err)
		require.Len(mt, docs, 2)
		assert.Equal(mt, id.Hex(), docs[0]["_id"])
		assert.Equal(mt, "fmiller", docs[0]["username"])
	})

	mt.Run("find truncates at limit", func(mt *mtest.T) {
		store := newTestStore(mt, 2)
		ns := mt.DB.Name() + ".accounts"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "account_id", Value: int32(1)}},
			bson.D{{Key: "account_id", Value: int32(2)}},
			bson.D{{Key: "account_id", Value: int32(3)}},
		))

		res, err := store.Execute(context.Background(), &QuerySpec{Collection: "accounts", Operation: OpFind})
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), res.Count)
		assert.True(mt, res.Truncated)
		assert.Len(mt, res.Documents, 2)
	})

	mt.Run("aggregate", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		ns := mt.DB.Name() + ".customers"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "Gold"}, {Key: "count", Value: int32(12)}},
			bson.D{{Key: "_id", Value: "Bronze"}, {Key: "count", Value: int32(9)}},
		))

		spec := &QuerySpec{
			Collection: "customers",
			Operation:  OpAggregate,
			Pipeline: []bson.D{
				{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$tier"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
			},
		}
		res, err := store.Execute(context.Background(), spec)
		require.NoError(mt, err)
		require.Len(mt, res.Documents, 2)
		assert.Equal(mt, "Gold", res.Documents[0]["_id"])
		assert.False(mt, res.Truncated)
	})

	mt.Run("count", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		ns := mt.DB.Name() + ".transactions"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(1746)}},
		))

		res, err := store.Execute(context.Background(), &QuerySpec{Collection: "transactions", Operation: OpCount})
		require.NoError(mt, err)
		assert.Equal(mt, int64(1746), res.Count)
		assert.Empty(mt, res.Documents)
	})

	mt.Run("distinct", func(mt *mtest.T) {
		store := newTestStore(mt, 2)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "values", Value: bson.A{"Brokerage", "Commodity", "InvestmentStock"}},
		))

		res, err := store.Execute(context.Background(), &QuerySpec{Collection: "accounts", Operation: OpDistinct, Field: "products"})
		require.NoError(mt, err)
		assert.Equal(mt, []any{"Brokerage", "Commodity"}, res.Values)
		assert.True(mt, res.Truncated)
	})

	mt.Run("execute rejects invalid spec", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		_, err := store.Execute(context.Background(), &QuerySpec{
			Collection: "accounts",
			Operation:  OpAggregate,
			Pipeline:   []bson.D{{{Key: "$out", Value: "copy"}}},
		})
		assert.ErrorIs(mt, err, ErrInvalidQuery)
	})

	mt.Run("server error", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "unknown operator: $foo",
			Name:    "BadValue",
		}))

		_, err := store.Execute(context.Background(), &QuerySpec{Collection: "accounts", Operation: OpFind})
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "unknown operator")
	})

	mt.Run("list collections", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		ns := mt.DB.Name() + ".$cmd.listCollections"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "name", Value: "customers"}, {Key: "type", Value: "collection"}},
			bson.D{{Key: "name", Value: "accounts"}, {Key: "type", Value: "collection"}},
		))

		names, err := store.ListCollections(context.Background())
		require.NoError(mt, err)
		assert.ElementsMatch(mt, []string{"customers", "accounts"}, names)
	})

	mt.Run("export all", func(mt *mtest.T) {
		store := newTestStore(mt, 50)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mt.DB.Name()+".$cmd.listCollections", mtest.FirstBatch,
				bson.D{{Key: "name", Value: "customers"}, {Key: "type", Value: "collection"}},
			),
			mtest.CreateCursorResponse(0, mt.DB.Name()+".customers", mtest.FirstBatch,
				bson.D{{Key: "username", Value: "fmiller"}},
				bson.D{{Key: "username", Value: "hillrachel"}},
			),
		)

		var buf bytes.Buffer
		n, err := store.ExportAll(context.Background(), &buf)
		require.NoError(mt, err)
		assert.Equal(mt, 1, n)

		var out map[string][]map[string]any
		require.NoError(mt, json.Unmarshal(buf.Bytes(), &out))
		require.Len(mt, out["customers"], 2)
		assert.Equal(mt, "hillrachel", out["customers"][1]["username"])
	})
}
