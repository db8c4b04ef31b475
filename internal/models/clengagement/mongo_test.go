package clengagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockClickStore(mt *mtest.T) *MongoStore {
	now := time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)
	return &MongoStore{coll: mt.Coll, now: func() time.Time { return now }}
}

func clicksReply(n int64) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "clicks", Value: n}}})
}

func duplicateKeyReply() bson.D {
	return mtest.CreateCommandErrorResponse(mtest.CommandError{
		Code:    11000,
		Name:    "DuplicateKey",
		Message: "E11000 duplicate key error collection: trackapi.paymentclicks",
	})
}

func TestMongoRecordClick(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert", func(mt *mtest.T) {
		store := mockClickStore(mt)
		mt.AddMockResponses(clicksReply(3))

		clicks, err := store.RecordClick(context.Background(), Click{OrderID: " A1 ", SessionID: "s1", Amount: "10"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), clicks)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)
		assert.Equal(mt, "A1", evt.Command.Lookup("query", "orderId").StringValue())
		assert.True(mt, evt.Command.Lookup("upsert").Boolean())
		assert.True(mt, evt.Command.Lookup("new").Boolean())
		_, err = evt.Command.LookupErr("update", "$inc", "clicks")
		assert.NoError(mt, err)
	})

	mt.Run("duplicate key retried as update", func(mt *mtest.T) {
		store := mockClickStore(mt)
		mt.AddMockResponses(duplicateKeyReply(), clicksReply(2))

		clicks, err := store.RecordClick(context.Background(), Click{OrderID: "A1"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), clicks)

		assert.Equal(mt, "findAndModify", mt.GetStartedEvent().CommandName)
		assert.Equal(mt, "findAndModify", mt.GetStartedEvent().CommandName)
	})

	mt.Run("second duplicate key fails", func(mt *mtest.T) {
		store := mockClickStore(mt)
		mt.AddMockResponses(duplicateKeyReply(), duplicateKeyReply())

		_, err := store.RecordClick(context.Background(), Click{OrderID: "A1"})
		assert.Error(mt, err)
	})

	mt.Run("order required", func(mt *mtest.T) {
		store := mockClickStore(mt)

		_, err := store.RecordClick(context.Background(), Click{OrderID: "  "})
		assert.ErrorIs(mt, err, ErrOrderIDRequired)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestMongoByOrder(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sums clicks", func(mt *mtest.T) {
		store := mockClickStore(mt)
		first := time.Date(2026, 4, 18, 8, 0, 0, 0, time.UTC)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "orderId", Value: "A1"}, {Key: "sessionId", Value: "s1"}, {Key: "clicks", Value: int64(3)}, {Key: "firstAt", Value: first}},
			bson.D{{Key: "orderId", Value: "A1"}, {Key: "sessionId", Value: "s2"}, {Key: "clicks", Value: int64(1)}, {Key: "firstAt", Value: first.Add(time.Hour)}},
		))

		out, err := store.ByOrder(context.Background(), "A1")
		require.NoError(mt, err)
		assert.Equal(mt, int64(4), out.Total)
		require.Len(mt, out.Rows, 2)
		assert.Equal(mt, "s1", out.Rows[0].SessionID)
		assert.Equal(mt, time.UTC, out.Rows[0].FirstAt.Location())
	})
}

func TestNewMongoStoreCreatesIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := NewMongoStore(context.Background(), mt.DB)
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "createIndexes", evt.CommandName)
		assert.Equal(mt, CollectionName, evt.Command.Lookup("createIndexes").StringValue())
	})
}
