// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, compression,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/ai"
	"github.com/plankdev/plank-ai-backend/internal/config"
	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/http/handlers"
	"github.com/plankdev/plank-ai-backend/internal/http/middleware"
	"github.com/plankdev/plank-ai-backend/internal/repo"
	"github.com/plankdev/plank-ai-backend/internal/services"
)

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface. This keeps services decoupled from
// the concrete repo package while reusing the existing functions.
type conversationRepoShim struct{}

func (conversationRepoShim) CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, title)
}

func (conversationRepoShim) ListConversations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, userID)
}

func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id, userID)
}

func (conversationRepoShim) DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteConversation(ctx, db, id, userID)
}

func (conversationRepoShim) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountConversations(ctx, db, userID)
}

func (conversationRepoShim) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, offset, limit)
}

// userRepoShim adapts the user repository functions to services.UserStore.
type userRepoShim struct{}

func (userRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

func (userRepoShim) UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.UpsertUser(ctx, db, u)
}

func (userRepoShim) ConsumeUsage(ctx context.Context, db *gorm.DB, userID string, limit int) (bool, error) {
	return repo.ConsumeUsage(ctx, db, userID, limit)
}

func (userRepoShim) UpgradeToPremium(ctx context.Context, db *gorm.DB, userID string) error {
	return repo.UpgradeToPremium(ctx, db, userID)
}

// paymentRepoShim adapts the payment repository functions to
// services.PaymentStore.
type paymentRepoShim struct{}

func (paymentRepoShim) CreatePayment(ctx context.Context, db *gorm.DB, userID string, amount int, method string) (*domain.Payment, error) {
	return repo.CreatePayment(ctx, db, userID, amount, method)
}

func (paymentRepoShim) GetPayment(ctx context.Context, db *gorm.DB, id uint) (*domain.Payment, error) {
	return repo.GetPayment(ctx, db, id)
}

func (paymentRepoShim) ListPayments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Payment, error) {
	return repo.ListPayments(ctx, db, userID)
}

func (paymentRepoShim) SettlePayment(ctx context.Context, db *gorm.DB, id uint, status, transactionID string) (bool, error) {
	return repo.SettlePayment(ctx, db, id, status, transactionID)
}

func (paymentRepoShim) CompletePayment(ctx context.Context, db *gorm.DB, id uint, transactionID string) (bool, error) {
	return repo.CompletePayment(ctx, db, id, transactionID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), idempotency and rate limiting,
// CORS and security headers, health/metrics/swagger endpoints, static upload
// serving, and the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with query scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (64 MiB; uploads need headroom over the 50 MiB cap)
//  6. Gzip compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, aiClient ai.Responder, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(64 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting). Replay detection for
	// message sends lives in the handler since the conversation id is in the
	// request body.
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, nil))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	corsHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Uploaded files are served statically.
	r.Static("/uploads", cfg.UploadDir)

	// Dependency injection: services ← repo/db/ai
	usageSvc := services.NewUsageService(db, userRepoShim{})
	usageSvc.FreeLimit = cfg.FreeLimit

	convSvc := services.NewConversationService(db, conversationRepoShim{})

	fileSvc := &services.FileService{DB: db, AI: aiClient, UploadDir: cfg.UploadDir}

	msgSvc := &services.MessageService{
		DB:             db,
		AI:             aiClient,
		Gate:           usageSvc,
		Analyzer:       fileSvc,
		MaxPromptRunes: 4000,
		TitleMaxLen:    60,
		TitleLocale:    language.Indonesian,
	}

	paySvc := &services.PaymentService{
		DB:          db,
		Store:       paymentRepoShim{},
		Entitlement: usageSvc,
		OnSettle:    middleware.CountPayment,
	}

	h := handlers.New(convSvc, msgSvc, usageSvc, paySvc, fileSvc, aiClient)
	h.UploadDir = cfg.UploadDir
	h.IdemTTL = cfg.IdempotencyTTL

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Users & usage
		api.GET("/user", h.GetUser)
		api.GET("/usage", h.GetUsage)

		// Conversations
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.DELETE("/conversations/:id", h.DeleteConversation)

		// Messages & AI
		api.POST("/messages", h.PostMessage)
		api.POST("/ai/chat", h.AIChat)

		// Files
		api.POST("/upload", h.Upload)
		api.GET("/files", h.ListFiles)

		// Payments
		api.POST("/payments", h.CreatePayment)
		api.GET("/payments", h.ListPayments)
		api.GET("/payments/:id/status", h.PaymentStatus)
		api.POST("/payments/:id/confirm", h.ConfirmPayment)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on read downstream.
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
