package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/internal/metrics"
	"github.com/vtt-om/arrowhead-client-go/pkg/config"
)

// serviceReply is what every configured service answers with.
type serviceReply struct {
	Service  string    `json:"service"`
	System   string    `json:"system"`
	Method   string    `json:"method"`
	Path     string    `json:"path"`
	Consumer string    `json:"consumer,omitempty"`
	Received time.Time `json:"received"`
}

// newRouter builds the provider's HTTP handler. ctx bounds the rate
// limiter's background cleanup. Secure providers only serve consumers that
// present a certificate.
func newRouter(ctx context.Context, cfg *config.Config, secure bool, logger *zap.Logger) (*gin.Engine, error) {
	if err := cfg.Require(config.RoleProvider); err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(prometheusMiddleware())

	if len(cfg.Provider.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Provider.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/metrics", metricsHandler())
	router.GET("/echo", func(c *gin.Context) { c.String(http.StatusOK, "Got it!") })

	limited := router.Group("/")
	if secure {
		limited.Use(requireConsumerCert())
	}
	if cfg.Provider.RateLimitRPS > 0 {
		limited.Use(rateLimiter(ctx, cfg.Provider, logger))
	}
	for _, svc := range cfg.Services {
		path := config.ServicePath(svc.ServiceURI)
		limited.Any(path, serviceHandler(svc.ServiceDefinition, cfg.System.Name))
		logger.Debug("service route", zap.String("service", svc.ServiceDefinition), zap.String("path", path))
	}
	return router, nil
}

func serviceHandler(definition, system string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, serviceReply{
			Service:  definition,
			System:   system,
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Consumer: c.GetString(ctxConsumer),
			Received: time.Now().UTC(),
		})
	}
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// prometheusMiddleware records every served request.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveProviderRequest(c.Request.Method, path, c.Writer.Status())
	}
}

func metricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
