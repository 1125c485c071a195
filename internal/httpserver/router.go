package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"inboxwhats/pkg/otel"
	"inboxwhats/pkg/trace"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker is satisfied by *mq.Publisher.
type ConnChecker interface {
	IsConnected() bool
}

type Config struct {
	VerifyToken string
	// RatePerSecond limits webhook calls per client IP; zero disables it.
	RatePerSecond float64
	Burst         int
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(webhook *WebhookHandler, db Pinger, publisher ConnChecker, cfg Config, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), traceMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hooks := r.Group("/webhook")
	if cfg.RatePerSecond > 0 {
		hooks.Use(NewIPRateLimiter(cfg.RatePerSecond, cfg.Burst, logger).Middleware())
	}
	hooks.GET("", webhook.Verify)
	hooks.POST("", webhook.Receive)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

// traceMiddleware adopts the caller's trace id or assigns one, and echoes it.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName()); id != "" {
			ctx = trace.WithContext(ctx, id)
		} else {
			ctx = trace.Ensure(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), trace.FromContext(ctx))
		c.Next()
	}
}
