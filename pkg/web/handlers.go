package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-fivestars/pkg/hub"
	"github.com/teslashibe/go-fivestars/pkg/worker"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Active      int    `json:"active_sessions"`
	Subscribers int    `json:"subscribers"`
	Uptime      string `json:"uptime"`
}

// JoinResponse is returned when a session job is accepted.
type JoinResponse struct {
	SessionID string `json:"session_id"`
	Room      string `json:"room"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status: "ok",
		Active: s.sessions.Active(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.events != nil {
		resp.Subscribers = s.events.ClientCount()
	}
	return c.JSON(resp)
}

func (s *Server) handleMenu(c *fiber.Ctx) error {
	if s.catalog == nil {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(s.catalog.Menu())
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.sessions.List())
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	st, ok := s.sessions.Get(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	return c.JSON(st)
}

func (s *Server) handleJoinRoom(c *fiber.Ctx) error {
	room := c.Params("room")
	id, err := s.sessions.Start(room)
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(JoinResponse{SessionID: id, Room: room})
	case errors.Is(err, worker.ErrRoomBusy):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, worker.ErrFull), errors.Is(err, worker.ErrStopped):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

// handleEventsWS streams session updates. ?room= limits the feed to one
// room.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	if s.events == nil {
		c.Close()
		return
	}
	hub.NewClient(s.events, c, c.Query("room")).Run()
}
