// Package api exposes the HTTP surface: the public bolus calculator,
// authenticated journal endpoints, Prometheus metrics, and a websocket
// feed of new entries.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/entries"
	"github.com/glucolog/glucolog/internal/metrics"
	"github.com/glucolog/glucolog/internal/nightscout"
	"github.com/glucolog/glucolog/internal/store"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const version = "1.0.0"

// Server handles HTTP API and WebSocket
type Server struct {
	app     *fiber.App
	config  *config.Config
	store   *store.Store
	entries *entries.Store
	syncer  *nightscout.Syncer
	metrics *metrics.Metrics
	logger  *zap.Logger
	hub     *hub
	limiter *clientLimiter
}

// New creates a new API server. syncer may be nil when Nightscout import
// is not configured.
func New(cfg *config.Config, st *store.Store, entryStore *entries.Store, syncer *nightscout.Syncer, m *metrics.Metrics, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		store:   st,
		entries: entryStore,
		syncer:  syncer,
		metrics: m,
		logger:  log,
		hub:     newHub(m, log),
		limiter: newClientLimiter(cfg.RateLimit),
	}

	s.setupRoutes()
	return s
}

// errorHandler renders unhandled and router-level errors (404, 405) as the
// JSON error envelope instead of fiber's plain-text default.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	// Health check and metrics
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")

	// Public routes
	api.Post("/bolus/suggest", s.rateLimitMiddleware(), s.handleSuggest)
	api.Post("/auth/login", s.rateLimitMiddleware(), s.handleLogin)

	// Protected routes. Auth is attached per route rather than with a
	// group-wide Use so requests with the wrong verb still get fiber's 405
	// instead of a 401 from the middleware.
	auth := s.authMiddleware()

	api.Post("/auth/logout", auth, s.handleLogout)

	// Suggestion audit trail
	api.Get("/suggestions", auth, s.handleListSuggestions)

	// Journal
	api.Post("/entries", auth, s.handleCreateEntry)
	api.Get("/entries", auth, s.handleListEntries)
	api.Get("/entries/:id", auth, s.handleGetEntry)
	api.Delete("/entries/:id", auth, s.handleDeleteEntry)

	// Trends and gamification
	api.Get("/stats", auth, s.handleStats)
	api.Get("/streaks", auth, s.handleStreaks)

	// Dosing profile
	api.Get("/profile", auth, s.handleGetProfile)
	api.Put("/profile", auth, s.handleUpdateProfile)

	// CGM import
	api.Post("/sync/nightscout", auth, s.handleNightscoutSync)

	// WebSocket feed of new entries
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// App exposes the fiber app for handler tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   version,
		"timestamp": time.Now().Unix(),
	})
}
