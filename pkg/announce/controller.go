// Package announce decides when a stabilized gesture is announced and what
// is said, played and shown when it is.
//
// The controller applies four firing rules on top of an adaptive cooldown:
//
//   - the first announcement always fires
//   - a different gesture fires once the effective cooldown has elapsed
//   - the same gesture fires again after an extended cooldown
//   - critical gestures (Stop, Help, Emergency) fire on high confidence
//
// The effective cooldown is the base cooldown scaled by the user's response
// speed multiplier.
package announce

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

// Config holds the announcement gates.
type Config struct {
	BaseCooldown       time.Duration // Cooldown before scaling by response speed
	MinConfidence      float64       // Decisions at or below this are skipped
	OverrideConfidence float64       // Critical gestures above this bypass the cooldown
	ExtendedFactor     float64       // Same gesture repeats after this many cooldowns
	UsageEvery         int           // Usage-pattern pass every N interactions
	RecalibrateEvery   int           // Recalibration every N interactions
	VerboseThreshold   float64       // Verbosity above this adds the confidence
}

// DefaultConfig returns the stock gates.
func DefaultConfig() Config {
	return Config{
		BaseCooldown:       time.Second,
		MinConfidence:      0.65,
		OverrideConfidence: 0.9,
		ExtendedFactor:     3,
		UsageEvery:         10,
		RecalibrateEvery:   100,
		VerboseThreshold:   0.8,
	}
}

// Reason explains why an announcement fired.
type Reason string

const (
	ReasonFirst    Reason = "first"
	ReasonChanged  Reason = "changed"
	ReasonExtended Reason = "extended"
	ReasonOverride Reason = "override"
)

// Announcement is one firing: exactly one utterance and one cue.
type Announcement struct {
	ID            string       `json:"id"`
	Gesture       string       `json:"gesture"`
	Confidence    float64      `json:"confidence"`
	Text          string       `json:"text"`
	Style         Style        `json:"style"`
	Cue           feedback.Cue `json:"cue"`
	Reason        Reason       `json:"reason"`
	Interaction   int          `json:"interaction"`
	At            time.Time    `json:"at"`
	Recalibration string       `json:"recalibration,omitempty"`
}

// CooldownState is a copy of the controller's timing state.
type CooldownState struct {
	LastGesture  string        `json:"last_gesture,omitempty"`
	LastAt       time.Time     `json:"last_at,omitempty"`
	BaseCooldown time.Duration `json:"base_cooldown"`
	Interactions int           `json:"interactions"`
	Paused       bool          `json:"paused"`
}

// Window is the stabilization window cleared after every announcement.
type Window interface {
	Reset()
}

// Controller decides announcements. It is not safe for concurrent use; the
// owning engine serializes access.
type Controller struct {
	cfg     Config
	library *Library
	model   *usermodel.Model
	window  Window
	tuner   usermodel.StabilityTuner

	last         string
	lastAt       time.Time
	interactions int
	paused       bool
	annotate     bool
}

// NewController wires a controller. window and tuner may be nil.
func NewController(cfg Config, lib *Library, model *usermodel.Model, window Window, tuner usermodel.StabilityTuner) *Controller {
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = DefaultConfig().BaseCooldown
	}
	if cfg.ExtendedFactor <= 0 {
		cfg.ExtendedFactor = DefaultConfig().ExtendedFactor
	}
	return &Controller{
		cfg:     cfg,
		library: lib,
		model:   model,
		window:  window,
		tuner:   tuner,
	}
}

// EffectiveCooldown is the base cooldown scaled by the response speed.
func (c *Controller) EffectiveCooldown() time.Duration {
	return time.Duration(float64(c.cfg.BaseCooldown) * c.model.ResponseSpeed())
}

// Decide evaluates one stabilized decision at now.
func (c *Controller) Decide(d gesture.Decision, now time.Time) (Announcement, bool) {
	if c.paused || d.IsNeutral() || d.Confidence <= c.cfg.MinConfidence {
		return Announcement{}, false
	}

	reason, ok := c.shouldFire(d, now)
	if !ok {
		return Announcement{}, false
	}

	resp, err := c.library.Get(d.Gesture)
	if err != nil {
		return Announcement{}, false
	}
	style := Style(c.model.Style())
	variants := resp.Styled[style]
	if len(variants) == 0 {
		return Announcement{}, false
	}

	text := variants[c.interactions%len(variants)]
	if c.annotate || c.model.Verbosity() > c.cfg.VerboseThreshold {
		text += fmt.Sprintf(" Confidence: %.1f%%", d.Confidence*100)
	}

	c.interactions++
	if c.window != nil {
		c.window.Reset()
	}
	c.last = d.Gesture
	c.lastAt = now
	c.model.RecordOutcome(d.Gesture, true)

	a := Announcement{
		ID:          uuid.NewString(),
		Gesture:     d.Gesture,
		Confidence:  d.Confidence,
		Text:        text,
		Style:       style,
		Cue:         resp.Cue(),
		Reason:      reason,
		Interaction: c.interactions,
		At:          now,
	}

	if c.cfg.UsageEvery > 0 && c.interactions%c.cfg.UsageEvery == 0 {
		c.model.UpdateUsage(now)
	}
	if c.cfg.RecalibrateEvery > 0 && c.interactions%c.cfg.RecalibrateEvery == 0 {
		a.Recalibration = c.model.Recalibrate(c.tuner)
	}
	return a, true
}

func (c *Controller) shouldFire(d gesture.Decision, now time.Time) (Reason, bool) {
	if c.last == "" {
		return ReasonFirst, true
	}
	cooldown := c.EffectiveCooldown()
	elapsed := now.Sub(c.lastAt)

	switch {
	case d.Gesture != c.last && elapsed >= cooldown:
		return ReasonChanged, true
	case float64(elapsed) >= float64(cooldown)*c.cfg.ExtendedFactor:
		return ReasonExtended, true
	case gesture.IsCritical(d.Gesture) && d.Confidence > c.cfg.OverrideConfidence:
		return ReasonOverride, true
	}
	return "", false
}

// Ready reports whether d would pass the confidence gate and the firing
// rules at now, without announcing or changing any state.
func (c *Controller) Ready(d gesture.Decision, now time.Time) bool {
	if d.IsNeutral() || d.Confidence <= c.cfg.MinConfidence {
		return false
	}
	_, ok := c.shouldFire(d, now)
	return ok
}

// Touch records gesture as the last handled gesture without announcing it.
// Presentation control uses it so slide gestures share the cooldown.
func (c *Controller) Touch(label string, now time.Time) {
	c.last = label
	c.lastAt = now
}

// Reset forgets the last announced gesture so the next one fires at once.
func (c *Controller) Reset() {
	c.last = ""
	c.lastAt = time.Time{}
}

// Pause stops all announcements until Resume.
func (c *Controller) Pause() {
	c.paused = true
}

// Resume re-enables announcements.
func (c *Controller) Resume() {
	c.paused = false
}

// Paused reports whether announcements are paused.
func (c *Controller) Paused() bool {
	return c.paused
}

// SetAnnotate toggles the confidence suffix regardless of verbosity.
func (c *Controller) SetAnnotate(on bool) {
	c.annotate = on
}

// Interactions returns the number of announcements made.
func (c *Controller) Interactions() int {
	return c.interactions
}

// SetInteractions restores the interaction counter.
func (c *Controller) SetInteractions(n int) {
	if n >= 0 {
		c.interactions = n
	}
}

// LastGesture returns the last announced or touched gesture.
func (c *Controller) LastGesture() (string, time.Time) {
	return c.last, c.lastAt
}

// State returns a copy of the cooldown state.
func (c *Controller) State() CooldownState {
	return CooldownState{
		LastGesture:  c.last,
		LastAt:       c.lastAt,
		BaseCooldown: c.cfg.BaseCooldown,
		Interactions: c.interactions,
		Paused:       c.paused,
	}
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}
