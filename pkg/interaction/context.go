// Package interaction models the operating context (work, gaming,
// presentation, casual, accessibility) and the parameter presets each
// context applies.
package interaction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Context is an operating preset that tunes thresholds and command routing.
type Context string

const (
	Work          Context = "work"
	Gaming        Context = "gaming"
	Presentation  Context = "presentation"
	Casual        Context = "casual"
	Accessibility Context = "accessibility"
)

// All lists every context.
var All = []Context{Work, Gaming, Presentation, Casual, Accessibility}

// ErrUnknownContext is returned by ParseContext for unknown names.
var ErrUnknownContext = errors.New("interaction: unknown context")

// ParseContext converts a name to a Context.
func ParseContext(s string) (Context, error) {
	name := Context(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range All {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContext, s)
}

// Preset holds the parameters a context applies. Zero values leave the
// corresponding parameter unchanged.
type Preset struct {
	MinStableFrames int
	ResponseSpeed   float64
	Verbosity       float64
	Formality       float64
	Ambient         string
}

// Presets returns the preset for c.
func Presets(c Context) Preset {
	switch c {
	case Gaming:
		return Preset{MinStableFrames: 2, ResponseSpeed: 0.8, Verbosity: 0.3, Ambient: feedback.AmbientGaming}
	case Work:
		return Preset{MinStableFrames: 3, ResponseSpeed: 1.0, Formality: 0.8, Ambient: feedback.AmbientWork}
	case Presentation:
		return Preset{MinStableFrames: 4, Verbosity: 0.2, Ambient: feedback.AmbientPresentation}
	case Casual:
		return Preset{Formality: 0.3, Verbosity: 0.6}
	default:
		return Preset{}
	}
}

// DetectFromClock guesses a context from the local time: weekday office
// hours mean work, late evenings and nights mean casual. ok is false when
// the clock gives no signal.
func DetectFromClock(now time.Time) (Context, bool) {
	h := now.Hour()
	weekday := now.Weekday() != time.Saturday && now.Weekday() != time.Sunday
	switch {
	case weekday && h >= 9 && h < 17:
		return Work, true
	case h >= 20 || h < 6:
		return Casual, true
	}
	return "", false
}

// MotionPoint is one observation used for activity recognition.
type MotionPoint struct {
	Gesture   string  `json:"gesture,omitempty"`
	Stability float64 `json:"stability,omitempty"`
}

// Recognize infers the activity from recent motion. Mostly still hands with
// some pointing suggest a presentation, frequent gesture changes suggest
// gaming. Otherwise current is returned.
func Recognize(points []MotionPoint, current Context) Context {
	if looksLikePresentation(points) {
		return Presentation
	}
	if looksLikeGaming(points) {
		return Gaming
	}
	return current
}

func looksLikePresentation(points []MotionPoint) bool {
	if len(points) == 0 {
		return false
	}
	stable, pointing := 0, 0
	for _, p := range points {
		if p.Stability > 0.8 {
			stable++
		}
		if p.Gesture == gesture.Pointer {
			pointing++
		}
	}
	return float64(stable) > float64(len(points))*0.7 && pointing > 0
}

func looksLikeGaming(points []MotionPoint) bool {
	if len(points) < 5 {
		return false
	}
	changes := 0
	last := ""
	for _, p := range points {
		if p.Gesture == "" {
			continue
		}
		if last != "" && p.Gesture != last {
			changes++
		}
		last = p.Gesture
	}
	return float64(changes) > float64(len(points))*0.4
}
