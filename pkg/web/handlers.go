package web

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	contribws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/engine"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/hardware"
	"github.com/teslashibe/go-gesture/pkg/hub"
	"github.com/teslashibe/go-gesture/pkg/interaction"
	"github.com/teslashibe/go-gesture/pkg/mode"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

// errorHandler maps domain errors onto HTTP status codes.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, mode.ErrUnknownMode),
		errors.Is(err, interaction.ErrUnknownContext),
		errors.Is(err, usermodel.ErrUnknownFeedback),
		errors.Is(err, usermodel.ErrInvalidRating),
		errors.Is(err, announce.ErrInvalidResponse),
		errors.Is(err, hardware.ErrUnknownButton):
		code = fiber.StatusBadRequest
	case errors.Is(err, engine.ErrNotHomeAutomation):
		code = fiber.StatusConflict
	case errors.Is(err, hardware.ErrNotConnected):
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

// handleStatus returns a snapshot of the engine
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"engine":  s.engine.Status(),
		"clients": s.events.ClientCount(),
		"events": fiber.Map{
			"running": s.events.IsRunning(),
			"dropped": s.events.Dropped(),
		},
	})
}

// ModeRequest is the body of POST /api/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	m, err := mode.ParseMode(req.Mode)
	if err != nil {
		return err
	}
	return c.JSON(s.engine.SetMode(c.UserContext(), m))
}

// ContextRequest is the body of POST /api/context.
type ContextRequest struct {
	Context string `json:"context"`
}

func (s *Server) handleSetContext(c *fiber.Ctx) error {
	var req ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	ic, err := interaction.ParseContext(req.Context)
	if err != nil {
		return err
	}
	if err := s.engine.SetContext(c.UserContext(), ic); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"context": ic})
}

// ActivityRequest is the body of POST /api/activity.
type ActivityRequest struct {
	Points []interaction.MotionPoint `json:"points"`
}

func (s *Server) handleActivity(c *fiber.Ctx) error {
	var req ActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	ic, changed := s.engine.RecognizeActivity(c.UserContext(), req.Points)
	return c.JSON(fiber.Map{"context": ic, "changed": changed})
}

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	Type   string  `json:"type"`
	Rating float64 `json:"rating"`
}

func (s *Server) handleFeedback(c *fiber.Ctx) error {
	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.engine.ReceiveFeedback(c.UserContext(), req.Type, req.Rating)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleListGestures(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"gestures": s.engine.Library().Names()})
}

// GestureRequest is the body of POST /api/gestures. Without a response the
// gesture gets the default custom response.
type GestureRequest struct {
	Name     string             `json:"name"`
	Response *announce.Response `json:"response,omitempty"`
}

func (s *Server) handleRegisterGesture(c *fiber.Ctx) error {
	var req GestureRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	updated, err := s.engine.RegisterGesture(c.UserContext(), req.Name, req.Response)
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if updated {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"name": req.Name, "updated": updated})
}

// ButtonRequest is the body of POST /api/buttons/:index.
type ButtonRequest struct {
	On bool `json:"on"`
}

// handleButton toggles a relay. The index is one-based in the URL.
func (s *Server) handleButton(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "button index must be a positive integer")
	}
	var req ButtonRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	cmd, err := s.engine.HandleButton(c.UserContext(), index-1, req.On)
	if err != nil {
		return err
	}
	return c.JSON(cmd)
}

func (s *Server) handleSample(c *fiber.Ctx) error {
	var sample gesture.Sample
	if err := c.BodyParser(&sample); err != nil {
		return badRequest(err)
	}
	out := s.engine.ProcessSample(c.UserContext(), sample)
	if out.Status == engine.StatusFailed {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(out)
	}
	return c.JSON(out)
}

// CommandRequest is the body of POST /api/commands.
type CommandRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	return c.JSON(s.engine.HandleTranscript(c.UserContext(), req.Text))
}

func (s *Server) handleDiagnostic(c *fiber.Ctx) error {
	return c.JSON(s.engine.Diagnostic(c.UserContext()))
}

func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	brief := s.engine.Interrupt(c.UserContext())
	return c.JSON(fiber.Map{"brief": brief})
}

// handleEventsWS subscribes a client to engine events. The topics query
// parameter narrows the stream to a comma-separated list of event types.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c, topics(c.Query("topics"))...)
	client.Run()
}

// handleSamplesWS feeds classifier samples, one JSON object per message,
// and replies with each outcome.
func (s *Server) handleSamplesWS(c *contribws.Conn) {
	defer c.Close()
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var sample gesture.Sample
		if err := json.Unmarshal(data, &sample); err != nil {
			s.logger.Debug("bad sample frame", "err", err)
			if err := c.WriteJSON(fiber.Map{"status": engine.StatusFailed, "error": err.Error()}); err != nil {
				return
			}
			continue
		}
		if err := c.WriteJSON(s.engine.ProcessSample(context.Background(), sample)); err != nil {
			return
		}
	}
}

// handleTranscriptsWS feeds recognized utterances, one text message each.
func (s *Server) handleTranscriptsWS(c *contribws.Conn) {
	defer c.Close()
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.WriteJSON(s.engine.HandleTranscript(context.Background(), string(data))); err != nil {
			return
		}
	}
}
