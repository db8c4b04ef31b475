package clactivity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockLogStore(mt *mtest.T, now time.Time) *MongoStore {
	return &MongoStore{coll: mt.Coll, now: func() time.Time { return now }}
}

func TestMongoAppend(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		now := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
		store := mockLogStore(mt, now)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, createdAt, err := store.Append(context.Background(), &Entry{ServerDetectedIP: "203.0.113.5", Page: "/"})
		require.NoError(mt, err)
		assert.Len(mt, id, 36)
		assert.Equal(mt, now.Truncate(time.Millisecond), createdAt)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "insert", evt.CommandName)
		assert.Equal(mt, id, evt.Command.Lookup("documents", "0", "_id").StringValue())
		assert.Equal(mt, "203.0.113.5", evt.Command.Lookup("documents", "0", "serverDetectedIp").StringValue())
	})
}

func TestMongoQuery(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("projection and geo summary", func(mt *mtest.T) {
		store := mockLogStore(mt, time.Now())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		newest := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "b"},
				{Key: "createdAt", Value: newest},
				{Key: "serverDetectedIp", Value: "203.0.113.5"},
				{Key: "page", Value: "/checkout"},
				{Key: "geo", Value: bson.D{{Key: "city", Value: "Lyon"}, {Key: "country", Value: "France"}}},
			},
			bson.D{
				{Key: "_id", Value: "a"},
				{Key: "createdAt", Value: newest.Add(-time.Minute)},
				{Key: "serverDetectedIp", Value: "198.51.100.1"},
				{Key: "geo", Value: bson.D{}},
			},
		))

		before := newest.Add(time.Hour)
		rows, err := store.Query(context.Background(), 2, &before)
		require.NoError(mt, err)
		require.Len(mt, rows, 2)

		assert.Equal(mt, "b", rows[0].ID)
		assert.Equal(mt, newest, rows[0].CreatedAt)
		require.NotNil(mt, rows[0].Geo)
		assert.Equal(mt, "Lyon", *rows[0].Geo.City)
		assert.Nil(mt, rows[0].Geo.Region)
		assert.Equal(mt, "France", *rows[0].Geo.Country)
		assert.Nil(mt, rows[1].Geo)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		assert.Equal(mt, before, evt.Command.Lookup("filter", "createdAt", "$lt").Time().UTC())
		assert.EqualValues(mt, 2, evt.Command.Lookup("limit").AsInt64())
		_, err = evt.Command.LookupErr("projection", "geo.city")
		assert.NoError(mt, err)
	})

	mt.Run("empty", func(mt *mtest.T) {
		store := mockLogStore(mt, time.Now())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		rows, err := store.Query(context.Background(), 0, nil)
		require.NoError(mt, err)
		assert.NotNil(mt, rows)
		assert.Empty(mt, rows)
	})
}
