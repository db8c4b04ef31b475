package clredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trackapi/internal/models/clgeo"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	geoPrefix    = "geo:"
	dailyPrefix  = "clicks:daily:"
	ordersPrefix = "clicks:orders:"
	dayLayout    = "2006-01-02"

	// les compteurs du jour restent lisibles un mois
	DailyExpiration = 31 * 24 * time.Hour
)

// Connect ouvre le client et vérifie la connexion
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// GeoCache garde les géolocalisations réussies, une clé par adresse
type GeoCache struct {
	client *redis.Client
}

func NewGeoCache(client *redis.Client) *GeoCache {
	return &GeoCache{client: client}
}

func (g *GeoCache) Get(ctx context.Context, ip string) (*clgeo.Record, bool) {
	val, err := g.client.Get(ctx, geoPrefix+ip).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("ip", ip).Msg("geo cache read failed")
		}
		return nil, false
	}
	var rec clgeo.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (g *GeoCache) Set(ctx context.Context, ip string, rec *clgeo.Record, ttl time.Duration) {
	if rec == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := g.client.Set(ctx, geoPrefix+ip, data, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("geo cache write failed")
	}
}

// ClickCounter tient des compteurs journaliers à côté du store principal
type ClickCounter struct {
	client *redis.Client
	now    func() time.Time
}

// Realtime résume l'activité d'une journée
type Realtime struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
	Orders int64  `json:"orders"`
}

func NewClickCounter(client *redis.Client) *ClickCounter {
	return &ClickCounter{client: client, now: time.Now}
}

// Incr compte un clic pour la journée UTC courante
func (cc *ClickCounter) Incr(ctx context.Context, orderID string) error {
	day := cc.now().UTC().Format(dayLayout)
	dailyKey := dailyPrefix + day
	ordersKey := ordersPrefix + day

	pipe := cc.client.TxPipeline()
	pipe.HIncrBy(ctx, dailyKey, "clicks", 1)
	pipe.SAdd(ctx, ordersKey, orderID)
	pipe.Expire(ctx, dailyKey, DailyExpiration)
	pipe.Expire(ctx, ordersKey, DailyExpiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incr daily clicks: %w", err)
	}
	return nil
}

// Today renvoie le résumé de la journée UTC courante
func (cc *ClickCounter) Today(ctx context.Context) (*Realtime, error) {
	return cc.Day(ctx, cc.now().UTC().Format(dayLayout))
}

func (cc *ClickCounter) Day(ctx context.Context, day string) (*Realtime, error) {
	rt := &Realtime{Date: day}

	clicks, err := cc.client.HGet(ctx, dailyPrefix+day, "clicks").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read daily clicks: %w", err)
	}
	rt.Clicks = clicks

	orders, err := cc.client.SCard(ctx, ordersPrefix+day).Result()
	if err != nil {
		return nil, fmt.Errorf("read daily orders: %w", err)
	}
	rt.Orders = orders
	return rt, nil
}
