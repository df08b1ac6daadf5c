// Package httpapi wires the HTTP transport (Gin) to the customer hub service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// delivery-key validation, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/docs"
	"github.com/tbourn/go-customer-hub/internal/config"
	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/http/handlers"
	"github.com/tbourn/go-customer-hub/internal/http/middleware"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/services"
	"github.com/tbourn/go-customer-hub/internal/sysutil"
)

// hubRepoShim adapts the repository free functions to services.HubRepo.
// This keeps services decoupled from the concrete repo package.
type hubRepoShim struct{}

var _ services.HubRepo = hubRepoShim{}

// NewHubRepo returns the repo-backed services.HubRepo.
func NewHubRepo() services.HubRepo { return hubRepoShim{} }

func (hubRepoShim) CreateContact(ctx context.Context, db *gorm.DB, externalID, remark string) (*domain.Contact, error) {
	return repo.CreateContact(ctx, db, externalID, remark)
}

func (hubRepoShim) GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	return repo.GetContact(ctx, db, id)
}

func (hubRepoShim) GetContactByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Contact, error) {
	return repo.GetContactByExternalID(ctx, db, externalID)
}

func (hubRepoShim) UpdateContactProfile(ctx context.Context, db *gorm.DB, id string, remark, owner *string) error {
	return repo.UpdateContactProfile(ctx, db, id, remark, owner)
}

func (hubRepoShim) PromoteContact(ctx context.Context, db *gorm.DB, id string, p repo.Promotion) error {
	return repo.PromoteContact(ctx, db, id, p)
}

func (hubRepoShim) NextCustomerSeq(ctx context.Context, db *gorm.DB, contactID string) (uint, error) {
	return repo.NextCustomerSeq(ctx, db, contactID)
}

func (hubRepoShim) CreateThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	return repo.CreateThread(ctx, db, t)
}

func (hubRepoShim) GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	return repo.GetThread(ctx, db, id)
}

func (hubRepoShim) GetThreadByContact(ctx context.Context, db *gorm.DB, contactID string) (*domain.Thread, error) {
	return repo.GetThreadByContact(ctx, db, contactID)
}

func (hubRepoShim) SaveThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	return repo.SaveThread(ctx, db, t)
}

func (hubRepoShim) ListSweepableThreads(ctx context.Context, db *gorm.DB, now time.Time, afterID string, limit int) ([]domain.Thread, error) {
	return repo.ListSweepableThreads(ctx, db, now, afterID, limit)
}

func (hubRepoShim) CreateSignal(ctx context.Context, db *gorm.DB, s *domain.Signal) error {
	return repo.CreateSignal(ctx, db, s)
}

func (hubRepoShim) GetSignal(ctx context.Context, db *gorm.DB, id string) (*domain.Signal, error) {
	return repo.GetSignal(ctx, db, id)
}

func (hubRepoShim) ListSignals(ctx context.Context, db *gorm.DB, threadID string, limit int) ([]domain.Signal, error) {
	return repo.ListSignals(ctx, db, threadID, limit)
}

func (hubRepoShim) SaveTriggerOutput(ctx context.Context, db *gorm.DB, o *domain.TriggerOutput) error {
	return repo.SaveTriggerOutput(ctx, db, o)
}

func (hubRepoShim) GetTriggerOutput(ctx context.Context, db *gorm.DB, threadID string, includeUsed bool) (*domain.TriggerOutput, error) {
	return repo.GetTriggerOutput(ctx, db, threadID, includeUsed)
}

func (hubRepoShim) MarkTriggerUsed(ctx context.Context, db *gorm.DB, id string) error {
	return repo.MarkTriggerUsed(ctx, db, id)
}

func (hubRepoShim) UnknownPool(ctx context.Context, db *gorm.DB, limit int) ([]domain.UnknownPoolItem, error) {
	return repo.UnknownPool(ctx, db, limit)
}

func (hubRepoShim) TodayTodo(ctx context.Context, db *gorm.DB, limit int) ([]domain.TodoItem, error) {
	return repo.TodayTodo(ctx, db, limit)
}

func (hubRepoShim) ThreadStatistics(ctx context.Context, db *gorm.DB) (domain.ThreadStatistics, error) {
	return repo.ThreadStatistics(ctx, db)
}

func (hubRepoShim) DailyMetrics(ctx context.Context, db *gorm.DB, day time.Time, loc *time.Location) (domain.DailyMetrics, error) {
	return repo.DailyMetrics(ctx, db, day, loc)
}

func (hubRepoShim) ThreadsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.ThreadsStats(ctx, db)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	DB     string            `json:"db" example:"ok"`
	Host   sysutil.HostStats `json:"host"`
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r and mounts
// the hub API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. DeliveryKey (before the rate limiter so replays bypass it)
//  8. Rate limiter (per bridge client/IP)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, svc *services.CustomerHubService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.DeliveryKey(middleware.DeliveryOptions{MaxLen: 200}, deliveryLookup(svc)))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP())
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		middleware.HeaderClientID, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderReplayed}
	methods := []string{"GET", "POST", "PATCH", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO "*" even without an Origin header, so plain health checks see it.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{path.Join("/", cfg.APIBasePath, "contacts"), path.Join("/", cfg.APIBasePath, "threads")},
		ExposeHeaders:   []string{"ETag", middleware.HeaderReplayed},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", healthHandler(svc.DB, diskPath(cfg)))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/messages/process", h.ProcessMessage)

		api.GET("/unknown-pool", h.GetUnknownPool)
		api.GET("/today-todo", h.GetTodayTodo)
		api.GET("/statistics", h.GetStatistics)
		api.GET("/statistics/daily", h.GetDailyMetrics)

		api.POST("/contacts/promote", h.PromoteContact)
		api.GET("/contacts/:id", h.GetContact)
		api.PATCH("/contacts/:id", h.UpdateContact)

		api.GET("/threads/:id", h.GetThread)
		api.POST("/threads/:id/snooze", h.SnoozeThread)
		api.POST("/threads/:id/resolve", h.ResolveThread)
		api.POST("/threads/:id/waiting", h.MarkWaiting)
		api.POST("/threads/:id/recalc", h.RecalcThread)
		api.POST("/threads/:id/trigger", h.TriggerScenario)
		api.GET("/threads/:id/trigger-output", h.GetTriggerOutput)

		api.POST("/trigger-outputs/:id/used", h.MarkTriggerUsed)

		api.POST("/cron/recalc", h.RecalcAll)
	}
}

// deliveryLookup asks the service's dedup store whether a delivery key was
// already processed. Nil when dedup is disabled.
func deliveryLookup(svc *services.CustomerHubService) middleware.DeliveryLookup {
	if svc.Dedup == nil {
		return nil
	}
	store := svc.Dedup
	return func(ctx context.Context, key string) (bool, error) {
		_, seen, err := store.Lookup(ctx, key)
		return seen, err
	}
}

// diskPath is the directory whose filesystem /health reports on.
func diskPath(cfg config.Config) string {
	if cfg.DB.Driver == "sqlite" && cfg.DB.Path != "" {
		return filepath.Dir(cfg.DB.Path)
	}
	return "."
}

// healthHandler godoc
// @ID          health
// @Summary     Liveness and host status
// @Description Pings the database and reports CPU, memory and disk usage. 503 when the database is unreachable.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  httpapi.HealthResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /health [get]
func healthHandler(db *gorm.DB, dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unreachable")
			return
		}
		c.JSON(http.StatusOK, HealthResponse{
			Status: "ok",
			DB:     "ok",
			Host:   sysutil.CollectHostStats(ctx, dir),
		})
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Oversized bodies fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
