package clserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"trackapi/internal/clredis"
	"trackapi/internal/gormzerologger"
	"trackapi/internal/models/clactivity"
	"trackapi/internal/models/clconfig"
	"trackapi/internal/models/clengagement"
	"trackapi/internal/models/clgeo"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Trackapi regroupe les dépendances partagées par les handlers
type Trackapi struct {
	Configuration *clconfig.Config
	Version       string
	BuildID       string
	StartedAt     time.Time

	Db    *gorm.DB
	Mongo *mongo.Client
	Redis *redis.Client

	Geo        *clgeo.Resolver
	Activity   *clactivity.Service
	Engagement *clengagement.Service

	maxmind *clgeo.Maxmind
}

func Init(ctx context.Context, config *clconfig.Config, version string, buildid string) (*Trackapi, error) {
	ta := &Trackapi{
		Configuration: config,
		Version:       version,
		BuildID:       buildid,
		StartedAt:     time.Now(),
	}

	ta.initRedis(ctx)
	ta.initGeo()

	activity, engagement, err := ta.initStores(ctx)
	if err != nil {
		ta.Close()
		return nil, err
	}

	var counter *clredis.ClickCounter
	if ta.Redis != nil {
		counter = clredis.NewClickCounter(ta.Redis)
	}
	ta.Activity = clactivity.NewService(activity, ta.Geo, config.Activity.RetentionDays)
	ta.Engagement = clengagement.NewService(engagement, counter)
	return ta, nil
}

// initRedis est facultatif: sans redis le cache géo et les compteurs du jour sont désactivés
func (ta *Trackapi) initRedis(ctx context.Context) {
	cfg := ta.Configuration.Redis
	if cfg.Addr == "" {
		return
	}
	client, err := clredis.Connect(ctx, cfg.Addr, cfg.Db)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable, continuing without cache")
		return
	}
	ta.Redis = client
}

func (ta *Trackapi) initGeo() {
	cfg := ta.Configuration.Geo
	ta.Geo, ta.maxmind = clgeo.NewFromConfig(cfg, &http.Client{Timeout: cfg.Timeout() + time.Second})
	if ta.Geo != nil && ta.Redis != nil {
		ta.Geo.WithCache(clredis.NewGeoCache(ta.Redis), cfg.CacheTTL())
	}
}

func (ta *Trackapi) initStores(ctx context.Context) (clactivity.Store, clengagement.Store, error) {
	cfg := ta.Configuration.Database

	if cfg.Db == "mongodb" {
		client, err := connectMongo(ctx, cfg.Dsn)
		if err != nil {
			return nil, nil, err
		}
		ta.Mongo = client
		db := client.Database(cfg.Name)

		activity, err := clactivity.NewMongoStore(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		engagement, err := clengagement.NewMongoStore(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		return activity, engagement, nil
	}

	db, err := openDatabase(cfg, ta.Configuration.Logger.Level, ta.Configuration.Production)
	if err != nil {
		return nil, nil, err
	}
	ta.Db = db

	activity, err := clactivity.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}
	engagement, err := clengagement.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}
	return activity, engagement, nil
}

func openDatabase(cfg clconfig.DatabaseConfig, level string, production bool) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormzerologger.ForConfig(level, production),
	}

	var db *gorm.DB
	var err error
	switch cfg.Db {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.Dsn), gormConfig)
	default:
		err = fmt.Errorf("le type de database doit etre sqlite, mysql ou mongodb")
	}
	if err != nil {
		return nil, fmt.Errorf("connexion base de données: %w", err)
	}

	// sqlite n'accepte qu'un écrivain à la fois
	if cfg.Db == "sqlite" {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return db, nil
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb connection uri is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("Successfully connected to MongoDB")
	return client, nil
}

// Uptime renvoie le temps écoulé depuis le démarrage, en secondes
func (ta *Trackapi) Uptime() float64 {
	return time.Since(ta.StartedAt).Seconds()
}

func (ta *Trackapi) Close() {
	if ta.Activity != nil {
		ta.Activity.Stop()
	}
	if ta.maxmind != nil {
		if err := ta.maxmind.Close(); err != nil {
			log.Warn().Err(err).Msg("maxmind close failed")
		}
	}
	if ta.Mongo != nil {
		if err := ta.Mongo.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to disconnect MongoDB client")
		}
	}
	if ta.Db != nil {
		sqlDB, err := ta.Db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			log.Warn().Err(err).Msg("database close failed")
		}
	}
	if ta.Redis != nil {
		if err := ta.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
}
