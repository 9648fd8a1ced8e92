// Package middleware provides the request-side guards shared by all
// routes: token-bucket rate limiting per client and JWT authentication.
package middleware

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tradecore/exchange-api/internal/auth"
	"github.com/tradecore/exchange-api/pkg/response"
)

// routeLimits maps route-group prefixes to their per-minute budget.
// Unmatched paths fall through to the read limit.
var routeLimits = []struct {
	prefix    string
	perMinute float64
}{
	{"/api/v1/auth", 10},
	{"/api/v1/orders", 100},
}

const (
	readPerMinute = 600
	burst         = 5
	visitorTTL    = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterRegistry struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

var registry = &limiterRegistry{
	visitors: make(map[string]*visitor),
}

func init() {
	go registry.evictStale()
}

func limitFor(path string) rate.Limit {
	for _, rl := range routeLimits {
		if strings.HasPrefix(path, rl.prefix) {
			return rate.Limit(rl.perMinute / 60.0)
		}
	}
	return rate.Limit(readPerMinute / 60.0)
}

// get returns the limiter for one client on one route group, creating
// it on first sight.
func (r *limiterRegistry) get(clientKey, path string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := clientKey + ":" + path
	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limitFor(path), burst)}
		r.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (r *limiterRegistry) evictStale() {
	for {
		time.Sleep(time.Minute)

		r.mu.Lock()
		for key, v := range r.visitors {
			if time.Since(v.lastSeen) > visitorTTL {
				delete(r.visitors, key)
			}
		}
		r.mu.Unlock()
	}
}

// RateLimit throttles clients per endpoint group, keyed by user when
// authenticated and by IP otherwise.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetString("email")
		if clientKey == "" {
			clientKey = c.ClientIP()
		}

		if !registry.get(clientKey, c.FullPath()).Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates the bearer token and stores the caller's identity in
// the request context.
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		// Websocket clients cannot set headers from browsers; accept the
		// token as a query parameter there.
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header required")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
