package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Catalog   CatalogConfig
	RateLimit RateLimitConfig
	JWT       JWTConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	Schema       string
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// CacheConfig holds the TTL for each cache category and the redis client policy.
type CacheConfig struct {
	KeyPrefix   string
	PointTTL    time.Duration // catalog:product:{id}
	ListTTL     time.Duration // catalog:list:{hash}
	FacetTTL    time.Duration // catalog:facets:{hash}
	CategoryTTL time.Duration // catalog:categories
	OpTimeout   time.Duration

	// CoalesceMisses collapses concurrent misses on the same list or facet key into one store query.
	CoalesceMisses bool

	BreakerFailureRatio float64
	BreakerMinRequests  uint32
	BreakerOpenTimeout  time.Duration
}

type CatalogConfig struct {
	DefaultLimit     int
	MaxLimit         int
	RelatedLimit     int
	NativeTextSearch bool
}

// RateLimitConfig keeps its own key prefix so that a cache flush leaves the counters alone.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
}

type JWTConfig struct {
	Secret string
}

// IsDevelopment reports whether the server runs outside production.
func (c ServerConfig) IsDevelopment() bool {
	return c.Env != "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not read .env file: %v", err)
	}

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 10)
	viper.SetDefault("DB_QUERY_TIMEOUT", "5s")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_KEY_PREFIX", "app:")
	viper.SetDefault("CACHE_POINT_TTL", "300s")
	viper.SetDefault("CACHE_LIST_TTL", "300s")
	viper.SetDefault("CACHE_FACET_TTL", "90s")
	viper.SetDefault("CACHE_CATEGORY_TTL", "600s")
	viper.SetDefault("CACHE_OP_TIMEOUT", "250ms")
	viper.SetDefault("CACHE_COALESCE_MISSES", false)
	viper.SetDefault("CACHE_BREAKER_FAILURE_RATIO", 0.6)
	viper.SetDefault("CACHE_BREAKER_MIN_REQUESTS", 10)
	viper.SetDefault("CACHE_BREAKER_OPEN_TIMEOUT", "30s")
	viper.SetDefault("CATALOG_DEFAULT_LIMIT", 20)
	viper.SetDefault("CATALOG_MAX_LIMIT", 100)
	viper.SetDefault("CATALOG_RELATED_LIMIT", 4)
	viper.SetDefault("CATALOG_NATIVE_TEXT_SEARCH", false)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 120)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
	viper.SetDefault("RATE_LIMIT_KEY_PREFIX", "ratelimit")

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(viper.GetString("ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Database:     viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
			QueryTimeout: viper.GetDuration("DB_QUERY_TIMEOUT"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Cache: CacheConfig{
			KeyPrefix:           viper.GetString("CACHE_KEY_PREFIX"),
			PointTTL:            viper.GetDuration("CACHE_POINT_TTL"),
			ListTTL:             viper.GetDuration("CACHE_LIST_TTL"),
			FacetTTL:            viper.GetDuration("CACHE_FACET_TTL"),
			CategoryTTL:         viper.GetDuration("CACHE_CATEGORY_TTL"),
			OpTimeout:           viper.GetDuration("CACHE_OP_TIMEOUT"),
			CoalesceMisses:      viper.GetBool("CACHE_COALESCE_MISSES"),
			BreakerFailureRatio: viper.GetFloat64("CACHE_BREAKER_FAILURE_RATIO"),
			BreakerMinRequests:  viper.GetUint32("CACHE_BREAKER_MIN_REQUESTS"),
			BreakerOpenTimeout:  viper.GetDuration("CACHE_BREAKER_OPEN_TIMEOUT"),
		},
		Catalog: CatalogConfig{
			DefaultLimit:     viper.GetInt("CATALOG_DEFAULT_LIMIT"),
			MaxLimit:         viper.GetInt("CATALOG_MAX_LIMIT"),
			RelatedLimit:     viper.GetInt("CATALOG_RELATED_LIMIT"),
			NativeTextSearch: viper.GetBool("CATALOG_NATIVE_TEXT_SEARCH"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:            viper.GetDuration("RATE_LIMIT_WINDOW"),
			KeyPrefix:         viper.GetString("RATE_LIMIT_KEY_PREFIX"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
