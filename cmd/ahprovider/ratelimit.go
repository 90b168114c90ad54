package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vtt-om/arrowhead-client-go/pkg/config"
)

const consumerIdleTTL = 10 * time.Minute

// consumerLimits holds one token bucket per consumer. A consumer is the
// system named by its client certificate, or its IP address when the
// provider runs insecure.
type consumerLimits struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newConsumerLimits(cfg config.Provider) *consumerLimits {
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	return &consumerLimits{
		rps:     rate.Limit(cfg.RateLimitRPS),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

func (l *consumerLimits) allow(consumer string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[consumer]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[consumer] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// evictIdle drops buckets not used since before cutoff.
func (l *consumerLimits) evictIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// sweep evicts idle consumers every half TTL until ctx ends.
func (l *consumerLimits) sweep(ctx context.Context) {
	ticker := time.NewTicker(consumerIdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evictIdle(now.Add(-consumerIdleTTL))
		}
	}
}

// rateLimiter throttles each consumer to the configured rate and burst.
func rateLimiter(ctx context.Context, cfg config.Provider, logger *zap.Logger) gin.HandlerFunc {
	limits := newConsumerLimits(cfg)
	go limits.sweep(ctx)

	return func(c *gin.Context) {
		consumer := c.GetString(ctxConsumer)
		if consumer == "" {
			consumer = c.ClientIP()
		}
		if !limits.allow(consumer, time.Now()) {
			logger.Debug("consumer throttled", zap.String("consumer", consumer), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"errorMessage": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
