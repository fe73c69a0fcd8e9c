// Package feedback defines the output sinks driven by the interpretation
// core (speech, sound effects, haptics, ambient lighting, slide control)
// and a dispatcher that treats missing or failing devices as no-ops.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
)

// Speaker renders text as speech.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Sounder plays a named sound effect.
type Sounder interface {
	PlaySound(ctx context.Context, id string) error
}

// Haptics drives a haptic device.
type Haptics interface {
	Trigger(ctx context.Context, p HapticPattern) error
}

// Lights drives ambient lighting.
type Lights interface {
	SetColor(ctx context.Context, c Color) error
	SetPattern(ctx context.Context, name string) error
}

// Slides controls presentation software.
type Slides interface {
	Slide(ctx context.Context, action SlideAction) error
}

// SlideAction is a presentation control request.
type SlideAction string

const (
	SlideNext     SlideAction = "next"
	SlidePrevious SlideAction = "previous"
	SlideStart    SlideAction = "start"
)

// Color is an RGB light colour.
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

func (c Color) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// RGB builds a Color.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// Cue is one multimodal feedback request. Empty fields are skipped.
type Cue struct {
	Sound  string `json:"sound,omitempty"`
	Haptic string `json:"haptic,omitempty"`
	Light  *Color `json:"light,omitempty"`
}

// IsZero reports whether the cue carries nothing to render.
func (c Cue) IsZero() bool {
	return c.Sound == "" && c.Haptic == "" && c.Light == nil
}

// HapticPattern describes a vibration.
type HapticPattern struct {
	Name      string        `json:"name"`
	Intensity float64       `json:"intensity"`
	Duration  time.Duration `json:"duration"`
	Direction string        `json:"direction,omitempty"`
	Repeats   int           `json:"repeats,omitempty"`
}

// Haptic pattern names.
const (
	HapticLightPulse   = "light_pulse"
	HapticStrongBump   = "strong_bump"
	HapticDirectional  = "directional_pulse"
	HapticConfirmation = "confirmation_pattern"
	HapticDoublePulse  = "double_pulse"
)

var hapticPatterns = map[string]HapticPattern{
	HapticLightPulse:   {Name: HapticLightPulse, Intensity: 0.3, Duration: 200 * time.Millisecond},
	HapticStrongBump:   {Name: HapticStrongBump, Intensity: 0.8, Duration: 400 * time.Millisecond},
	HapticDirectional:  {Name: HapticDirectional, Intensity: 0.5, Duration: 300 * time.Millisecond, Direction: "forward"},
	HapticConfirmation: {Name: HapticConfirmation, Intensity: 0.4, Duration: 200 * time.Millisecond, Repeats: 2},
	HapticDoublePulse:  {Name: HapticDoublePulse, Intensity: 0.3, Duration: 150 * time.Millisecond, Repeats: 2},
}

// LookupHaptic returns the pattern registered under name.
func LookupHaptic(name string) (HapticPattern, bool) {
	p, ok := hapticPatterns[name]
	return p, ok
}

// Ambient lighting states.
const (
	AmbientReady        = "ready"
	AmbientActive       = "active"
	AmbientSilent       = "silent"
	AmbientGaming       = "gaming"
	AmbientWork         = "work"
	AmbientPresentation = "presentation"
	AmbientShutdown     = "shutdown"
	AmbientParty        = "party"
)

var ambientColors = map[string]Color{
	AmbientReady:        RGB(100, 100, 255),
	AmbientActive:       RGB(100, 255, 100),
	AmbientSilent:       RGB(80, 80, 100),
	AmbientGaming:       RGB(255, 50, 255),
	AmbientWork:         RGB(255, 255, 200),
	AmbientPresentation: RGB(50, 50, 150),
	AmbientShutdown:     RGB(0, 0, 0),
}

// AmbientColor returns the solid colour for a state. Party is a pattern and
// has no colour.
func AmbientColor(state string) (Color, bool) {
	c, ok := ambientColors[state]
	return c, ok
}

// Dispatcher fans requests out to whichever devices are attached.
// Every field may be nil.
type Dispatcher struct {
	Speaker Speaker
	Sounder Sounder
	Haptics Haptics
	Lights  Lights
	Slides  Slides

	queue  *Queue
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. Missing devices are left nil.
func NewDispatcher(speaker Speaker, sounder Sounder, haptics Haptics, lights Lights, slides Slides) *Dispatcher {
	return &Dispatcher{
		Speaker: speaker,
		Sounder: sounder,
		Haptics: haptics,
		Lights:  lights,
		Slides:  slides,
		logger:  log.Component("feedback"),
	}
}

// WithLogger replaces the dispatcher logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.logger = l
	return d
}

// Say speaks text.
func (d *Dispatcher) Say(ctx context.Context, text string) {
	if d.Speaker == nil || text == "" {
		return
	}
	if err := d.Speaker.Speak(ctx, text); err != nil {
		d.logger.Warn("speech failed", "err", err)
	}
}

// Cue renders a multimodal cue.
func (d *Dispatcher) Cue(ctx context.Context, c Cue) {
	if c.Sound != "" && d.Sounder != nil {
		if err := d.Sounder.PlaySound(ctx, c.Sound); err != nil {
			d.logger.Warn("sound failed", "sound", c.Sound, "err", err)
		}
	}
	if c.Haptic != "" && d.Haptics != nil {
		if p, ok := LookupHaptic(c.Haptic); ok {
			if err := d.Haptics.Trigger(ctx, p); err != nil {
				d.logger.Warn("haptic failed", "pattern", c.Haptic, "err", err)
			}
		}
	}
	if c.Light != nil && d.Lights != nil {
		if err := d.Lights.SetColor(ctx, *c.Light); err != nil {
			d.logger.Warn("light failed", "color", c.Light.String(), "err", err)
		}
	}
}

// Ambient switches the ambient lighting state.
func (d *Dispatcher) Ambient(ctx context.Context, state string) {
	if d.Lights == nil || state == "" {
		return
	}
	var err error
	if state == AmbientParty {
		err = d.Lights.SetPattern(ctx, AmbientParty)
	} else if c, ok := AmbientColor(state); ok {
		err = d.Lights.SetColor(ctx, c)
	}
	if err != nil {
		d.logger.Warn("ambient state failed", "state", state, "err", err)
	}
}

// Slide forwards a presentation control request.
func (d *Dispatcher) Slide(ctx context.Context, action SlideAction) {
	if d.Slides == nil {
		return
	}
	if err := d.Slides.Slide(ctx, action); err != nil {
		d.logger.Warn("slide control failed", "action", action, "err", err)
	}
}

// Flush drops output that has not been rendered yet and cancels the
// request in flight. It is a no-op for a synchronous dispatcher.
func (d *Dispatcher) Flush() int {
	if d.queue == nil {
		return 0
	}
	return d.queue.Flush()
}

// Pending returns the number of requests waiting to be rendered.
func (d *Dispatcher) Pending() int {
	if d.queue == nil {
		return 0
	}
	return d.queue.Pending()
}

// Close renders what is already queued, giving up when ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d.queue == nil {
		return nil
	}
	return d.queue.Close(ctx)
}

// Devices reports which sinks are attached, keyed by display name.
func (d *Dispatcher) Devices() map[string]bool {
	return map[string]bool{
		"Voice output":     d.Speaker != nil,
		"Sound effects":    d.Sounder != nil,
		"Haptic feedback":  d.Haptics != nil,
		"Ambient lighting": d.Lights != nil,
		"Slide control":    d.Slides != nil,
	}
}
