package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// limiterCacheSize bounds how many client addresses keep a token bucket.
const limiterCacheSize = 1024

// Options configures the middleware stack built by [NewRouter].
type Options struct {
	CORSOrigin string
	RateLimit  rate.Limit
	RateBurst  int
	Logger     *log.Logger
}

// NewRouter creates a gin engine with request logging, recovery, CORS and per-client rate limiting.
//
// Middleware runs in the order it is listed. Logging wraps recovery so panics are logged as 500s.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if opts.Logger != nil {
		router.Use(Logger(opts.Logger))
	}
	router.Use(gin.Recovery())
	router.Use(CORS(opts.CORSOrigin))
	if opts.RateLimit > 0 {
		router.Use(RateLimit(opts.RateLimit, opts.RateBurst))
	}
	return router
}

// Logger logs one line per request at debug level, or warn for server errors.
func Logger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", kv...)
			return
		}
		logger.Debug("request", kv...)
	}
}

// CORS allows browser frontends on origin to call the API. An empty origin means "*".
func CORS(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit rejects requests with 429 once a client exceeds limit requests per second beyond burst.
// Clients are keyed by IP; the least recently seen are forgotten when the cache fills.
func RateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiters, _ := lru.New[string, *rate.Limiter](limiterCacheSize)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		l, ok := limiters.Get(ip)
		if !ok {
			l = rate.NewLimiter(limit, burst)
			limiters.Add(ip, l)
		}
		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
