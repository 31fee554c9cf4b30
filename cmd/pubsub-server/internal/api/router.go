package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/coregx/broker/cmd/pubsub-server/internal/docs" // registers the OpenAPI document served by WithDocs
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	docs bool
}

// WithDocs serves the Swagger UI and doc.json at /api/v1/swagger/*any.
func WithDocs() RouterOption {
	return func(c *routerConfig) { c.docs = true }
}

// NewRouter registers every route under /api/v1.
func NewRouter(h *Handler, log *zap.Logger, opts ...RouterOption) *gin.Engine {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(log))

	router.HandleMethodNotAllowed = true
	router.NoMethod(h.HandleNoMethod)
	router.NoRoute(h.HandleNoRoute)

	v1 := router.Group("/api/v1")
	v1.GET("/health", h.HandleHealth)

	if cfg.docs {
		v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	topics := v1.Group("/topics")
	{
		topics.POST("", h.HandleCreateTopic)
		topics.GET("", h.HandleListTopics)
		topics.GET("/:id", h.HandleGetTopic)
		topics.POST("/:id/subscriptions", h.HandleCreateSubscription)
		topics.GET("/:id/subscriptions", h.HandleListSubscriptions)
		topics.POST("/:id/messages", h.HandlePublish)
	}

	subscriptions := v1.Group("/subscriptions")
	{
		subscriptions.GET("/:id", h.HandleGetSubscription)
		subscriptions.GET("/:id/messages", h.HandlePull)
		subscriptions.POST("/:id/ack", h.HandleAcknowledge)
		subscriptions.POST("/:id/messages", h.HandleAcknowledge)
	}

	return router
}

// RequestID reuses an incoming X-Request-ID or assigns a new UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger writes one structured line per request.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(RequestIDHeader)),
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
