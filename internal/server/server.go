package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/config"
	"storefront-catalog/internal/database"
	"storefront-catalog/internal/domain"
	custommiddleware "storefront-catalog/internal/middleware"
	"storefront-catalog/internal/observability"
	"storefront-catalog/internal/repository"
	"storefront-catalog/internal/service"
	"storefront-catalog/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	db      database.Service
	redis   *redis.Client
	cache   *cache.RedisStore
	metrics *observability.Collector
}

// NewRedisClient builds the client shared by the cache and the rate limiter.
// Retries are disabled so a dead server fails fast and the cache breaker sees it.
func NewRedisClient(cfg config.RedisConfig, opTimeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   -1,
		DialTimeout:  time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})
}

func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) *Server {
	metrics := observability.NewCollector("catalog")

	store := cache.NewRedisStore(redisClient, cache.RedisOptions{
		KeyPrefix:           cfg.Cache.KeyPrefix,
		OpTimeout:           cfg.Cache.OpTimeout,
		BreakerFailureRatio: cfg.Cache.BreakerFailureRatio,
		BreakerMinRequests:  cfg.Cache.BreakerMinRequests,
		BreakerOpenTimeout:  cfg.Cache.BreakerOpenTimeout,
		Metrics:             metrics,
	}, logger)

	// Initialize repositories
	productRepo := repository.NewProductRepository(db.DB(), store, repository.Options{
		PointTTL:     cfg.Cache.PointTTL,
		QueryTimeout: cfg.Database.QueryTimeout,
		Metrics:      metrics,
	}, logger)

	// Initialize services
	catalogService := service.NewCatalogService(productRepo, store, service.CatalogOptions{
		Limits:           domain.PageLimits{Default: cfg.Catalog.DefaultLimit, Max: cfg.Catalog.MaxLimit},
		RelatedLimit:     cfg.Catalog.RelatedLimit,
		ListTTL:          cfg.Cache.ListTTL,
		FacetTTL:         cfg.Cache.FacetTTL,
		CategoryTTL:      cfg.Cache.CategoryTTL,
		NativeTextSearch: cfg.Catalog.NativeTextSearch,
		CoalesceMisses:   cfg.Cache.CoalesceMisses,
	}, logger)

	// Initialize handlers
	productHandler := transport.NewProductHandler(catalogService, logger)

	s := &Server{
		config:  cfg,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		cache:   store,
		metrics: metrics,
	}

	// Create router
	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack(logger)...)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))
	router.Use(custommiddleware.MetricsMiddleware(metrics))

	router.Get("/health", s.handleHealth)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	// Admin callers are limited per user since the limiter runs after authentication
	rateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         cfg.RateLimit.KeyPrefix,
		Timeout:           cfg.Cache.OpTimeout,
	}, logger)

	// Register routes
	productHandler.RegisterRoutes(router, authMiddleware, rateLimit)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// HealthResponse reports the state of each dependency
type HealthResponse struct {
	Status   string            `json:"status"`
	Database map[string]string `json:"database"`
	Cache    map[string]string `json:"cache"`
}

// handleHealth is 503 only when the database is down; a cache outage degrades the service without failing it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Database: s.db.Health(ctx),
		Cache:    map[string]string{"status": "up", "breaker": s.cache.BreakerState().String()},
	}

	if err := s.cache.Ping(ctx); err != nil {
		resp.Cache["status"] = "down"
		resp.Cache["error"] = err.Error()
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Database["status"] != "up" {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	custommiddleware.RespondWithJSON(w, status, resp)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
