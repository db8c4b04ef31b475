package clengagement

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "paymentclicks"

type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore crée l'index unique (orderId, sessionId) sur lequel repose l'upsert
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(CollectionName)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}, {Key: "sessionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "firstAt", Value: 1}}},
		{Keys: bson.D{{Key: "lastAt", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s indexes: %w", CollectionName, err)
	}
	return &MongoStore{coll: coll, now: time.Now}, nil
}

func (s *MongoStore) RecordClick(ctx context.Context, c Click) (int64, error) {
	if err := normalize(&c); err != nil {
		return 0, err
	}
	now := s.now().UTC()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"clicks": 1})

	var doc struct {
		Clicks int64 `bson:"clicks"`
	}
	err := s.coll.FindOneAndUpdate(ctx, clickFilter(c), clickUpdate(c, now), opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// deux upserts simultanés sur une clé neuve: le second repasse en mise à jour
		err = s.coll.FindOneAndUpdate(ctx, clickFilter(c), clickUpdate(c, now), opts).Decode(&doc)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert payment click: %w", err)
	}
	return doc.Clicks, nil
}

func (s *MongoStore) Stats(ctx context.Context, windowDays int) (*Stats, error) {
	windowDays = clampWindow(windowDays)
	now := s.now().UTC()
	stats := &Stats{WindowDays: windowDays, ByDay: []DayCount{}}

	total, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count payment clicks: %w", err)
	}
	stats.Total = total

	cur, err := s.coll.Aggregate(ctx, sumPipeline())
	if err != nil {
		return nil, fmt.Errorf("sum payment clicks: %w", err)
	}
	var sums []struct {
		Clicks int64 `bson:"clicks"`
	}
	if err := cur.All(ctx, &sums); err != nil {
		return nil, fmt.Errorf("decode click sum: %w", err)
	}
	if len(sums) > 0 {
		stats.TotalClicks = sums[0].Clicks
	}

	last24h, err := s.coll.CountDocuments(ctx, bson.M{"firstAt": bson.M{"$gte": now.Add(-24 * time.Hour)}})
	if err != nil {
		return nil, fmt.Errorf("count last 24h: %w", err)
	}
	stats.Last24h = last24h

	cur, err = s.coll.Aggregate(ctx, byDayPipeline(windowStart(now, windowDays)))
	if err != nil {
		return nil, fmt.Errorf("group payment clicks by day: %w", err)
	}
	if err := cur.All(ctx, &stats.ByDay); err != nil {
		return nil, fmt.Errorf("decode days: %w", err)
	}
	return stats, nil
}

func (s *MongoStore) List(ctx context.Context, limit int) ([]Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "lastAt", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	return s.find(ctx, bson.M{}, opts)
}

func (s *MongoStore) ByOrder(ctx context.Context, orderID string) (*OrderTotal, error) {
	rows, err := s.find(ctx, bson.M{"orderId": orderID}, options.Find().SetSort(bson.M{"firstAt": 1}))
	if err != nil {
		return nil, err
	}
	out := &OrderTotal{OrderID: orderID, Rows: rows}
	for _, r := range rows {
		out.Total += r.Clicks
	}
	return out, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Record, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find payment clicks: %w", err)
	}
	defer cur.Close(ctx)

	rows := []Record{}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode payment clicks: %w", err)
	}
	for i := range rows {
		rows[i].FirstAt = rows[i].FirstAt.UTC()
		rows[i].LastAt = rows[i].LastAt.UTC()
	}
	return rows, nil
}

func clickFilter(c Click) bson.M {
	return bson.M{"orderId": c.OrderID, "sessionId": c.SessionID}
}

func clickUpdate(c Click, now time.Time) bson.M {
	onInsert := bson.M{"firstAt": now}
	if c.Meta != nil {
		onInsert["meta"] = c.Meta
	}
	return bson.M{
		"$inc": bson.M{"clicks": 1},
		"$set": bson.M{
			"currency":  c.Currency,
			"amount":    c.Amount,
			"address":   c.Address,
			"ip":        c.IP,
			"userAgent": c.UserAgent,
			"lastAt":    now,
		},
		"$setOnInsert": onInsert,
	}
}

func sumPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": nil, "clicks": bson.M{"$sum": "$clicks"}}}},
	}
}

func byDayPipeline(since time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"firstAt": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$firstAt"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
}
