// Package web serves the operator API and the live event stream
package web

import (
	"context"
	"log/slog"
	"strings"

	contribws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/engine"
	"github.com/teslashibe/go-gesture/pkg/hub"
)

// Config configures the server.
type Config struct {
	Port      string
	StaticDir string // Served at / when set
}

// Server is the operator API server
type Server struct {
	app    *fiber.App
	cfg    Config
	engine *engine.Engine
	events *hub.Hub
	logger *slog.Logger
}

// NewServer creates a server for e. Engine events published through
// Publisher(events) reach the /ws/events subscribers; a nil hub gets a
// fresh one.
func NewServer(cfg Config, e *engine.Engine, events *hub.Hub) *Server {
	if events == nil {
		events = hub.New("events")
	}
	s := &Server{
		cfg:    cfg,
		engine: e,
		events: events,
		logger: log.Component("web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Gesture Control",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/mode", s.handleSetMode)
	api.Post("/context", s.handleSetContext)
	api.Post("/activity", s.handleActivity)
	api.Post("/feedback", s.handleFeedback)
	api.Get("/gestures", s.handleListGestures)
	api.Post("/gestures", s.handleRegisterGesture)
	api.Post("/buttons/:index", s.handleButton)
	api.Post("/samples", s.handleSample)
	api.Post("/commands", s.handleCommand)
	api.Get("/diagnostic", s.handleDiagnostic)
	api.Post("/interrupt", s.handleInterrupt)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/ingest/samples", contribws.New(s.handleSamplesWS))
	app.Get("/ws/ingest/transcripts", contribws.New(s.handleTranscriptsWS))

	s.app = app
	return s
}

// Publisher returns an engine publisher that fans events out through h,
// one topic per event type.
func Publisher(h *hub.Hub) engine.Publisher {
	logger := log.Component("web")
	return engine.PublisherFunc(func(ev engine.Event) {
		if err := h.BroadcastJSON(string(ev.Type), ev); err != nil {
			logger.Warn("failed to encode event", "type", ev.Type, "err", err)
		}
	})
}

// Hub returns the event hub.
func (s *Server) Hub() *hub.Hub {
	return s.events
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the event hub and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.events.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "err", err)
		}
	}()

	s.logger.Info("listening", "addr", "http://localhost:"+s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// topics parses the comma-separated topic query parameter.
func topics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
