package clconfig

import (
	"fmt"
	"log/syslog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string        `yaml:"trustedproxies"`
	TrustedPlatform string          `yaml:"trustedplatform"`
	Database        DatabaseConfig  `yaml:"database"`
	Redis           RedisConfig     `yaml:"redis"`
	Production      bool            `yaml:"production"`
	Listen          ListenConfig    `yaml:"listen"`
	Logger          LoggerConfig    `yaml:"logger"`
	Geo             GeoConfig       `yaml:"geo"`
	Activity        ActivityConfig  `yaml:"activity"`
	RateLimit       RateLimitConfig `yaml:"ratelimit"`
	Cors            CorsConfig      `yaml:"cors"`
}

type DatabaseConfig struct {
	Db   string `yaml:"db"`
	Path string `yaml:"path"`
	Dsn  string `yaml:"dsn"`
	Name string `yaml:"name"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Db   int    `yaml:"db"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
	Metrics string `yaml:"metrics"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

// GeoConfig regroupe les fournisseurs de géolocalisation
type GeoConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IpinfoToken     string `yaml:"ipinfotoken"`
	TimeoutMs       int    `yaml:"timeoutms"`
	MaxmindDb       string `yaml:"maxminddb"`
	MaxmindAsnDb    string `yaml:"maxmindasndb"`
	CacheTTLMinutes int    `yaml:"cachettlminutes"`
}

type ActivityConfig struct {
	Silent        bool `yaml:"silent"`
	RetentionDays int  `yaml:"retentiondays"`
}

type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Period  string `yaml:"period"`
	Limit   int64  `yaml:"limit"`
}

type CorsConfig struct {
	Origins []string `yaml:"origins"`
}

const (
	DefaultGeoTimeout = 4 * time.Second
	DefaultListen     = "0.0.0.0:8000"
)

// Timeout renvoie le délai maximum accordé à chaque fournisseur
func (g GeoConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return DefaultGeoTimeout
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

func (g GeoConfig) CacheTTL() time.Duration {
	if g.CacheTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(g.CacheTTLMinutes) * time.Minute
}

// PeriodDuration renvoie la fenêtre du rate limiter, une minute par défaut
func (r RateLimitConfig) PeriodDuration() time.Duration {
	d, err := time.ParseDuration(r.Period)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

func NewExampleConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./trackapi.db",
		},
		Production: false,
		Listen: ListenConfig{
			Website: DefaultListen,
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Geo: GeoConfig{
			Enabled:         true,
			TimeoutMs:       4000,
			CacheTTLMinutes: 1440,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Period:  "1m",
			Limit:   60,
		},
	}
}

func CreateExampleConfig(filename string) (string, error) {
	example := NewExampleConfig()

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Listen.Metrics = "127.0.0.1:8090"
		example.Production = true
		example.TrustedPlatform = "cloudflare"
		example.Database.Path = "/var/lib/trackapi/sqlite.db"
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/trackapi/trackapi.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/trackapi/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire le fichier %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("erreur de parsing YAML: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Website == "" {
		c.Listen.Website = DefaultListen
	}
	if c.Database.Db == "" {
		c.Database.Db = "sqlite"
	}
	if c.Database.Db == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "./trackapi.db"
	}
	if c.Database.Db == "mongodb" && c.Database.Name == "" {
		c.Database.Name = "trackapi"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.RateLimit.Limit <= 0 {
		c.RateLimit.Limit = 60
	}
}

// LoadEnv lit un éventuel fichier .env puis applique les variables d'environnement,
// elles sont prioritaires sur le fichier YAML
func (c *Config) LoadEnv(envFiles ...string) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("failed to load env file")
		}
	}
	c.ApplyEnv(os.Getenv)
}

// ApplyEnv surcharge la configuration avec les variables connues
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("IPINFO_TOKEN")); v != "" {
		c.Geo.IpinfoToken = v
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			host := "0.0.0.0"
			if i := strings.LastIndex(c.Listen.Website, ":"); i > 0 {
				host = c.Listen.Website[:i]
			}
			c.Listen.Website = host + ":" + v
		}
	}
	if v := strings.TrimSpace(getenv("MONGODB_URI")); v != "" {
		c.Database.Db = "mongodb"
		c.Database.Dsn = v
		if c.Database.Name == "" {
			c.Database.Name = "trackapi"
		}
	}
	if v := strings.TrimSpace(getenv("MONGODB_DB")); v != "" {
		c.Database.Name = v
	}
	if v := strings.TrimSpace(getenv("DATABASE_DSN")); v != "" {
		c.Database.Dsn = v
	}
	if v := strings.TrimSpace(getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
}

func CreateExample(shouldCreateExample bool, configFile string) {
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "trackapi.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("erreur création exemple: %w", err)
	}

	fmt.Printf("✅ Fichier exemple créé: %s\n", filename)
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Trackapi version %s", version)

	logPrintf("Mode Production %v", config.Production)

	logPrintf("Database")
	switch config.Database.Db {
	case "sqlite":
		logPrintf("  • Type sqlite")
		logPrintf("  • Path %s", config.Database.Path)
	case "mysql":
		logPrintf("  • Type mysql")
	case "mongodb":
		logPrintf("  • Type mongodb")
		logPrintf("  • Base %s", config.Database.Name)
	}
	if config.Redis.Addr != "" {
		logPrintf("  • Redis %s", config.Redis.Addr)
	}

	if config.Geo.Enabled {
		logPrintf("Géolocalisation activée, timeout %s", config.Geo.Timeout())
		if config.Geo.IpinfoToken != "" {
			logPrintf("  • ipinfo.io avec token")
		}
		logPrintf("  • ipapi.co")
		if config.Geo.MaxmindDb != "" {
			logPrintf("  • Base maxmind %s", config.Geo.MaxmindDb)
			if config.Geo.MaxmindAsnDb != "" {
				logPrintf("  • Base maxmind asn %s", config.Geo.MaxmindAsnDb)
			}
		}
	} else {
		logPrintf("Géolocalisation désactivée")
	}

	if config.Activity.RetentionDays > 0 {
		logPrintf("Rétention des logs %d jours", config.Activity.RetentionDays)
	}
	if config.RateLimit.Enabled {
		logPrintf("Rate limit %d requêtes par %s", config.RateLimit.Limit, config.RateLimit.PeriodDuration())
	}

	// Logger
	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
		logPrintf("  • Tag %s", config.Logger.Syslog.Tag)
	}
}

// Info logue avec printf
func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
