package engine

import (
	"context"
	"errors"
	"math"

	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/combo"
	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/interaction"
	"github.com/teslashibe/go-gesture/pkg/mode"
)

// ErrInvalidSample is reported for samples without a label or with a
// non-finite confidence.
var ErrInvalidSample = errors.New("engine: invalid sample")

// Status summarizes what one sample produced.
type Status string

const (
	StatusInsufficientData Status = "insufficient_data"
	StatusDiscarded        Status = "discarded"
	StatusStable           Status = "stable"
	StatusAnnounced        Status = "announced"
	StatusPresentation     Status = "presentation"
	StatusFailed           Status = "failed"
)

// Outcome describes the effect of one sample.
type Outcome struct {
	Status       Status                 `json:"status"`
	Sample       gesture.Sample         `json:"sample"`
	Decision     *gesture.Decision      `json:"decision,omitempty"`
	Mode         mode.Mode              `json:"mode"`
	ModeChanged  bool                   `json:"mode_changed,omitempty"`
	Combo        *combo.Firing          `json:"combo,omitempty"`
	Announcement *announce.Announcement `json:"announcement,omitempty"`
	Slide        feedback.SlideAction   `json:"slide,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// ProcessSample runs one classifier sample through stabilization, mode
// switching, combo detection, presentation control and announcement.
func (e *Engine) ProcessSample(ctx context.Context, s gesture.Sample) Outcome {
	fx := e.begin()
	defer e.end(ctx)

	if s.Timestamp.IsZero() {
		s.Timestamp = fx.at
	}
	out := Outcome{Sample: s}

	if s.Label == "" || math.IsNaN(s.Confidence) || math.IsInf(s.Confidence, 0) {
		out.Status = StatusFailed
		out.Error = ErrInvalidSample.Error()
		out.Mode = e.modes.Current()
		return out
	}
	s.Confidence = gesture.ClampConfidence(s.Confidence)
	out.Sample = s

	if !e.active {
		out.Status = StatusDiscarded
		out.Mode = e.modes.Current()
		return out
	}

	e.lastSample = s
	e.hasSample = true
	fx.publish(EventGesture, s)
	if s.Label != gesture.Neutral {
		e.model.RecordGesture(s.Label)
	}

	d, ok := e.filter.Observe(s)
	if !ok {
		out.Status = StatusInsufficientData
		out.Mode = e.modes.Current()
		return out
	}
	out.Decision = &d
	changed := d.Gesture != e.lastChanged.Gesture
	if changed {
		e.lastChanged = d
		fx.publish(EventDecision, d)
	}

	out.ModeChanged = e.modes.Process(d.Gesture, d.Confidence)
	out.Mode = e.modes.Current()

	// A held gesture yields the same decision on every frame; only the
	// transition into it is a combo step.
	if changed && !d.IsNeutral() {
		if f, fired := e.combos.Observe(d.Gesture, fx.at); fired {
			e.runComboLocked(f)
			out.Combo = &f
		}
	}

	if e.context == interaction.Presentation && gesture.IsPresentation(d.Gesture) {
		if !e.controller.Ready(d, fx.at) {
			out.Status = StatusStable
			return out
		}
		out.Slide = e.slideLocked(d.Gesture)
		e.controller.Touch(d.Gesture, fx.at)
		e.filter.Reset()
		out.Status = StatusPresentation
		return out
	}

	a, fired := e.controller.Decide(d, fx.at)
	if !fired {
		if d.IsNeutral() || d.Confidence <= e.controller.Config().MinConfidence || e.controller.Paused() {
			out.Status = StatusDiscarded
		} else {
			out.Status = StatusStable
		}
		return out
	}

	out.Announcement = &a
	out.Status = StatusAnnounced
	fx.say(a.Text)
	if !a.Cue.IsZero() {
		fx.cues = append(fx.cues, a.Cue)
	}
	fx.publish(EventAnnouncement, a)
	if a.Recalibration != "" {
		fx.say(a.Recalibration)
		e.savePreferencesLocked()
	}
	return out
}

// runComboLocked applies a combo's action and speaks its response.
func (e *Engine) runComboLocked(f combo.Firing) {
	switch f.Combo.Action {
	case combo.ActionParty:
		e.setAmbientLocked(feedback.AmbientParty)
	case combo.ActionPrecision:
		e.filter.SetMinStableFrames(2)
	}
	e.fx.say(f.Combo.Response)
	e.fx.publish(EventCombo, f)
	e.logger.Info("combo fired", "action", f.Combo.Action, "sequence", f.Combo.Sequence)
}

var slideActions = map[string]struct {
	action feedback.SlideAction
	speech string
}{
	gesture.Next:     {feedback.SlideNext, "Next slide"},
	gesture.Previous: {feedback.SlidePrevious, "Previous slide"},
	gesture.Start:    {feedback.SlideStart, "Starting presentation"},
}

// slideLocked queues a slide action for a presentation gesture.
func (e *Engine) slideLocked(label string) feedback.SlideAction {
	s, ok := slideActions[label]
	if !ok {
		return ""
	}
	e.fx.slides = append(e.fx.slides, s.action)
	e.fx.say(s.speech)
	e.fx.publish(EventSlide, map[string]any{"action": s.action, "gesture": label})
	return s.action
}
