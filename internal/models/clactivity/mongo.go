package clactivity

import (
	"context"
	"fmt"
	"time"

	"trackapi/internal/models/clgeo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "iplogs"

type logDocument struct {
	ID               string        `bson:"_id"`
	ServerDetectedIP string        `bson:"serverDetectedIp"`
	ClientReportedIP string        `bson:"clientReportedIp"`
	UserAgent        string        `bson:"userAgent"`
	Page             string        `bson:"page"`
	Note             string        `bson:"note"`
	Geo              *clgeo.Record `bson:"geo,omitempty"`
	CreatedAt        time.Time     `bson:"createdAt"`
}

type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore crée l'index de tri sur createdAt s'il n'existe pas
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(CollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s index: %w", CollectionName, err)
	}
	return &MongoStore{coll: coll, now: time.Now}, nil
}

func (s *MongoStore) Append(ctx context.Context, e *Entry) (string, time.Time, error) {
	prepare(e, s.now)
	// mongo ne garde que la milliseconde
	e.CreatedAt = e.CreatedAt.Truncate(time.Millisecond)

	doc := logDocument{
		ID:               e.ID,
		ServerDetectedIP: e.ServerDetectedIP,
		ClientReportedIP: e.ClientReportedIP,
		UserAgent:        e.UserAgent,
		Page:             e.Page,
		Note:             e.Note,
		Geo:              e.Geo,
		CreatedAt:        e.CreatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", time.Time{}, fmt.Errorf("insert activity log: %w", err)
	}
	return e.ID, e.CreatedAt, nil
}

func (s *MongoStore) Query(ctx context.Context, limit int, before *time.Time) ([]Row, error) {
	cursor, err := s.coll.Find(ctx, queryFilter(before), queryOptions(limit))
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer cursor.Close(ctx)

	rows := make([]Row, 0, clamp(limit))
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode activity logs: %w", err)
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
		if g := rows[i].Geo; g != nil {
			rows[i].Geo = summarize(g.City, g.Region, g.Country)
		}
	}
	return rows, nil
}

func (s *MongoStore) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": t.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("purge activity logs: %w", err)
	}
	return res.DeletedCount, nil
}

func queryFilter(before *time.Time) bson.M {
	if before == nil {
		return bson.M{}
	}
	return bson.M{"createdAt": bson.M{"$lt": before.UTC()}}
}

func queryOptions(limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clamp(limit))).
		SetProjection(bson.M{
			"_id":              1,
			"createdAt":        1,
			"serverDetectedIp": 1,
			"clientReportedIp": 1,
			"page":             1,
			"geo.city":         1,
			"geo.region":       1,
			"geo.country":      1,
		})
}
