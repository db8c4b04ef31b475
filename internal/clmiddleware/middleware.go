package clmiddleware

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"trackapi/internal/models/clconfig"
	"trackapi/internal/models/clrequest"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

func InitMiddleware(r *gin.Engine, config *clconfig.Config) {
	// logger
	r.Use(Logger())
	r.Use(Recovery())

	// CORS avant tout le reste pour répondre aux preflight
	r.Use(CORS(config.Cors.Origins))

	// use Compression, with gzip
	r.Use(gzip.Gzip(gzip.BestSpeed))

	// corps JSON limité à 1 Mo
	r.Use(BodyLimit(clrequest.MaxBodyBytes))

	// IP client résolue une seule fois par requête
	r.Use(ClientContext())
}

// CORS renvoie l'origine appelante avec credentials. Une liste vide autorise
// toutes les origines, sinon l'origine doit correspondre à une entrée complète
// ou à un nom d'hôte de la liste.
func CORS(allowed []string) gin.HandlerFunc {
	normalized := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o = normalizeOrigin(o); o != "" {
			normalized = append(normalized, strings.ToLower(o))
		}
	}

	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		if origin != "" && originAllowed(origin, normalized) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalizeOrigin(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin = strings.ToLower(normalizeOrigin(origin))
	if slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	return slices.Contains(allowed, u.Hostname())
}

// BodyLimit coupe la lecture du corps au-delà de max octets
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

// NewLimiter limite les écritures par IP. Le store redis est partagé entre
// instances, le store mémoire sert à défaut. La clé est l'adresse vue par gin,
// qui n'accepte les en-têtes de proxy que des proxies et plateformes de confiance.
func NewLimiter(config clconfig.RateLimitConfig, client *redis.Client) (gin.HandlerFunc, error) {
	rate := limiter.Rate{
		Period: config.PeriodDuration(),
		Limit:  config.Limit,
	}

	var store limiter.Store
	if client != nil {
		var err error
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: "trackapi:limiter",
		})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStore()
	}

	instance := limiter.New(store, rate)
	return ginlimiter.NewMiddleware(instance,
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		}),
		ginlimiter.WithKeyGetter(limiterKey),
	), nil
}

func limiterKey(c *gin.Context) string {
	return c.ClientIP()
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Traiter la requête
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		var logEvent *zerolog.Event
		switch {
		case statusCode == 404:
			logEvent = log.Debug()
		case statusCode >= 500:
			logEvent = log.Error()
		case statusCode >= 400:
			logEvent = log.Warn()
		default:
			logEvent = log.Info()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("ip", ClientIP(c)).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP Request")

		for _, err := range c.Errors {
			log.Error().
				Err(err.Err).
				Str("type", strconv.FormatUint(uint64(err.Type), 10)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			}
		}()
		c.Next()
	}
}
