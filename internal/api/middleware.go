package api

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// authMiddleware validates the bearer token and checks that its session is
// still live, so logout revokes tokens before they expire.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.config.Security.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		sessionID, _ := claims["jti"].(string)
		if sessionID == "" {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}
		if _, err := s.store.GetSession(sessionID); err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "session expired"})
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			userID = store.DefaultUserID
		}
		c.Locals("user_id", userID)
		c.Locals("session_id", sessionID)

		return c.Next()
	}
}

// clientLimiter hands out a token bucket per client IP.
type clientLimiter struct {
	config   config.RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// limiterCap bounds the per-IP map; a full map is reset rather than
// letting unique-IP floods grow it without bound.
const limiterCap = 10000

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *clientLimiter) allow(ip string) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= limiterCap {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Limit(l.config.RPS), l.config.Burst)
		l.limiters[ip] = limiter
	}
	return limiter.Allow()
}

func (s *Server) rateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.limiter.allow(c.IP()) {
			return c.Status(429).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

// metricsMiddleware records request latency by route pattern and status.
func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		route := c.Route().Path
		if route == "/" && c.Path() != "/" {
			route = "unmatched"
		}
		s.metrics.RecordRequest(c.Method(), route, strconv.Itoa(status), time.Since(start).Seconds())
		return err
	}
}
