package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultEditPositions is the ordered list of positions allowed to create, edit and delete
// credentials without an Admin role: MD down to Senior, plus Developer.
var DefaultEditPositions = []string{"MD", "Management", "QA", "HOD", "DevOps", "Developer", "Engineer", "Senior"}

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Access        AccessConfig
	Audit         AuditConfig
	Notifications NotificationConfig
	RateLimit     RateLimitConfig
	Alerts        AlertQueueConfig
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AccessConfig holds the position list that grants create/edit/delete to non-admins.
type AccessConfig struct {
	EditPositions []string
}

// AuditConfig tunes audit trail listing and caching.
type AuditConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	DefaultLimit int
	ClientLimit  int
}

// NotificationConfig tunes the notification feed and push stream.
type NotificationConfig struct {
	FeedLimit         int
	StreamKeepAlive   time.Duration
	PushChannelPrefix string
}

// RateLimitConfig applies to the public auth endpoints.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// AlertQueueConfig sizes the background admin alert dispatcher.
type AlertQueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith reads configuration into the provided viper instance, allowing callers (the CLI)
// to bind flags before values are resolved.
func LoadWith(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:          v.GetString("DATABASE_URL"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		SingleSession:     v.GetBool("JWT_SINGLE_SESSION"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	editPositions := splitAndTrim(v.GetString("EDIT_POSITIONS"))
	if len(editPositions) == 0 {
		editPositions = append([]string(nil), DefaultEditPositions...)
	}
	cfg.Access = AccessConfig{EditPositions: editPositions}

	cfg.Audit = AuditConfig{
		CacheEnabled: v.GetBool("AUDIT_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("AUDIT_CACHE_TTL"), 2*time.Minute),
		DefaultLimit: v.GetInt("AUDIT_DEFAULT_LIMIT"),
		ClientLimit:  v.GetInt("AUDIT_CLIENT_LIMIT"),
	}

	cfg.Notifications = NotificationConfig{
		FeedLimit:         v.GetInt("NOTIFICATION_FEED_LIMIT"),
		StreamKeepAlive:   parseDuration(v.GetString("NOTIFICATION_STREAM_KEEPALIVE"), 25*time.Second),
		PushChannelPrefix: v.GetString("NOTIFICATION_CHANNEL_PREFIX"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
		RequestsPerMinute: v.GetInt("RATE_LIMIT_RPM"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Alerts = AlertQueueConfig{
		Workers:    v.GetInt("ALERT_QUEUE_WORKERS"),
		BufferSize: v.GetInt("ALERT_QUEUE_BUFFER"),
		MaxRetries: v.GetInt("ALERT_QUEUE_RETRIES"),
		RetryDelay: parseDuration(v.GetString("ALERT_QUEUE_RETRY_DELAY"), 2*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ibs_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "ibs-portal")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_SINGLE_SESSION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EDIT_POSITIONS", strings.Join(DefaultEditPositions, ","))

	v.SetDefault("AUDIT_CACHE_ENABLED", true)
	v.SetDefault("AUDIT_CACHE_TTL", "2m")
	v.SetDefault("AUDIT_DEFAULT_LIMIT", 50)
	v.SetDefault("AUDIT_CLIENT_LIMIT", 100)

	v.SetDefault("NOTIFICATION_FEED_LIMIT", 50)
	v.SetDefault("NOTIFICATION_STREAM_KEEPALIVE", "25s")
	v.SetDefault("NOTIFICATION_CHANNEL_PREFIX", "notifications")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPM", 20)
	v.SetDefault("RATE_LIMIT_BURST", 5)

	v.SetDefault("ALERT_QUEUE_WORKERS", 2)
	v.SetDefault("ALERT_QUEUE_BUFFER", 64)
	v.SetDefault("ALERT_QUEUE_RETRIES", 3)
	v.SetDefault("ALERT_QUEUE_RETRY_DELAY", "2s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
