package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"parts-shop/internal/config"
	"parts-shop/internal/database"
	"parts-shop/internal/idempotency"
	custommiddleware "parts-shop/internal/middleware"
	"parts-shop/internal/repository"
	"parts-shop/internal/service"
	"parts-shop/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the external connections the server runs on. DB may be nil
// with the memory storage driver, Redis may be nil when it is disabled.
type Dependencies struct {
	DB    database.Service
	Redis redis.UniversalClient
}

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	deps    Dependencies
	users   service.UserService
	monitor *service.InventoryMonitor
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Server, error) {
	var repos *repository.Repositories
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, orders are lost on restart")
		repos = repository.NewMemoryRepositories()
	case config.StorageDriverPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("storage driver %q needs a database", cfg.Storage.Driver)
		}
		repos = repository.NewPostgresRepositories(deps.DB.DB())
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	var guard idempotency.Guard
	if deps.Redis != nil {
		guard = idempotency.NewRedisGuard(deps.Redis, cfg.Checkout.IdempotencyLockTTL, logger)
	} else {
		logger.Warn("Redis disabled, idempotency locks are process-local")
		guard = idempotency.NewLocalGuard()
	}

	// Initialize services
	userService := service.NewUserService(repos.Users, repos.RefreshTokens, cfg.JWT)
	checkoutService := service.NewCheckoutService(repos.Products, repos.Orders, guard, logger)
	catalogService := service.NewCatalogService(repos.Products, logger)
	monitor := service.NewInventoryMonitor(repos.Products, cfg.Inventory.LowStockThreshold, cfg.Inventory.MonitorSchedule, logger)

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, !cfg.IsProduction()))

	s := &Server{
		config:  cfg,
		logger:  logger,
		deps:    deps,
		users:   userService,
		monitor: monitor,
	}
	router.Get("/health", s.health)

	requireAuth := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	optionalAuth := custommiddleware.OptionalAuthMiddleware(cfg.JWT.Secret, logger)
	requireAdmin := custommiddleware.RequireAdmin(logger)

	var limiter func(http.Handler) http.Handler
	if deps.Redis != nil && cfg.RateLimit.Requests > 0 {
		limiter = custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit:checkout",
		}, logger)
	}

	userHandler := transport.NewUserHandler(userService, checkoutService, logger)
	userHandler.RegisterRoutes(router, requireAuth)
	userHandler.RegisterAdminRoutes(router, requireAuth, requireAdmin)
	transport.NewCheckoutHandler(checkoutService, logger).RegisterRoutes(router, optionalAuth, requireAuth, limiter)
	transport.NewProductHandler(catalogService, logger).RegisterRoutes(router, requireAuth, requireAdmin)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Bootstrap seeds the admin account and starts background jobs
func (s *Server) Bootstrap(ctx context.Context) error {
	if s.config.Admin.Password != "" {
		admin, err := s.users.EnsureAdmin(ctx, s.config.Admin.Username, s.config.Admin.Email, s.config.Admin.Password)
		if err != nil {
			return fmt.Errorf("failed to seed admin account: %w", err)
		}
		s.logger.Info("Admin account ready", zap.String("username", admin.Username))
	} else {
		s.logger.Warn("ADMIN_PASSWORD not set, skipping admin account seeding")
	}

	return s.monitor.Start()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	if s.deps.DB != nil {
		db := s.deps.DB.Health()
		body["database"] = db
		if db["status"] != "up" {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}

	if s.deps.Redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "down"
			body["status"] = "degraded"
		} else {
			body["redis"] = "up"
		}
	}

	custommiddleware.RespondWithJSON(w, status, body)
}

// NewRedisClient connects to Redis. It returns nil when Redis is disabled or
// unreachable at startup so the server can run without it.
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) redis.UniversalClient {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, continuing without it", zap.Error(err))
		client.Close()
		return nil
	}
	return client
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	s.monitor.Stop()

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
