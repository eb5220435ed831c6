// Package web serves the HTTP surface: health, session jobs, session
// status and a websocket feed of session updates.
package web

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/hub"
	"github.com/teslashibe/go-fivestars/pkg/worker"
)

// Sessions is the job runner behind the API.
type Sessions interface {
	Start(room string) (string, error)
	Get(id string) (worker.Status, bool)
	List() []worker.Status
	Active() int
}

// Server is the HTTP server.
type Server struct {
	app      *fiber.App
	sessions Sessions
	events   *hub.Hub
	catalog  *catalog.Catalog
	logger   *slog.Logger
	started  time.Time
}

// NewServer wires the routes. events may be nil to disable the feed.
func NewServer(sessions Sessions, events *hub.Hub, cat *catalog.Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		events:   events,
		catalog:  cat,
		logger:   logger.With("component", "web"),
		started:  time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "FiveStars Order Agent",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(s.requestLog)

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/menu", s.handleMenu)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Post("/rooms/:room/join", s.handleJoinRoom)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) requestLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
