package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackapi/internal/clmiddleware"
	handlers_activity "trackapi/internal/handlers/activity"
	handlers_engagement "trackapi/internal/handlers/engagement"
	"trackapi/internal/models/clconfig"
	"trackapi/internal/models/cllog"
	"trackapi/internal/models/clserver"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const VERSION string = "0.3.0"

var BuildID string

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	var config = flag.String("config", "", "Fichier de configuration YAML")
	var example = flag.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flag.Bool("version", false, "version du produit")
	flag.Parse()

	if *version {
		return "", false, true, nil
	}

	if *example {
		return *config, true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("fichier de configuration requis")
	}

	return *config, false, false, nil
}

func initConfiguration() *clconfig.Config {
	configFile, shouldCreateExample, versionDisplay, err := parseCommandLineArgs()
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  trackapi -config trackapi.yaml")
		fmt.Println("  trackapi -example  (pour créer un fichier exemple)")
		fmt.Println("  trackapi -version  (affiche la version)")
		os.Exit(1)
	}

	if versionDisplay {
		println(VERSION)
		os.Exit(0)
	}

	clconfig.CreateExample(shouldCreateExample, configFile)

	conf, err := clconfig.LoadConfig(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	conf.LoadEnv()
	return conf
}

func newServer(config *clconfig.Config) *gin.Engine {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// sans liste explicite, aucun proxy n'est de confiance
	if err := r.SetTrustedProxies(config.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("invalid trusted proxies")
	}
	if config.TrustedPlatform != "" {
		switch config.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = config.TrustedPlatform
		}
	}

	clmiddleware.InitMiddleware(r, config)
	return r
}

func setRoutes(r *gin.Engine, ta *clserver.Trackapi) error {
	config := ta.Configuration

	// middleware rate limiter sur les écritures
	writeLimiter := func(c *gin.Context) { c.Next() }
	if config.RateLimit.Enabled {
		mw, err := clmiddleware.NewLimiter(config.RateLimit, ta.Redis)
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		writeLimiter = mw
	}

	//default
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	r.GET("/_health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "uptime": ta.Uptime()})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "trackapi up"})
	})

	// Journal des visites
	activity := handlers_activity.NewActivityHandler(ta.Activity, config.Activity.Silent)
	r.POST("/log-ip", writeLimiter, activity.LogIP)
	r.GET("/log-ip/recent", activity.Recent)
	r.GET("/log-ip", activity.Recent)
	r.GET("/ip-logs", activity.Recent)

	// Compteurs de clics
	engagement := handlers_engagement.NewEngagementHandler(ta.Engagement)
	metrics := r.Group("/metrics")
	{
		metrics.POST("/payment-click", writeLimiter, engagement.PaymentClick)
		metrics.GET("/payment-click", engagement.List)
		metrics.GET("/payment-click/stats", engagement.Stats)
		metrics.GET("/payment-click/realtime", engagement.Realtime)
		metrics.GET("/payment-clicks", engagement.ByOrder)
	}
	return nil
}

func startServer(r *gin.Engine, config *clconfig.Config, ta *clserver.Trackapi) {
	var metricsSrv *http.Server
	if config.Listen.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              config.Listen.Metrics,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Msgf("Metrics disponible sur http://%s/metrics", config.Listen.Metrics)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	srv := &http.Server{
		Addr:         config.Listen.Website,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("API démarrée sur http://%s", config.Listen.Website)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("arrêt en cours")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	ta.Close()
	log.Info().Msg("arrêt terminé")
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	config := initConfiguration()
	cllog.InitLogger(config.Logger, config.Production)
	clconfig.DisplayConfiguration(config, VERSION)

	ta, err := clserver.Init(context.Background(), config, VERSION, BuildID)
	if err != nil {
		log.Fatal().Err(err).Msg("initialisation impossible")
	}

	r := newServer(config)
	if err := setRoutes(r, ta); err != nil {
		ta.Close()
		log.Fatal().Err(err).Msg("routes")
	}

	startServer(r, config, ta)
}
