package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/hardware"
	"github.com/teslashibe/go-gesture/pkg/interaction"
	"github.com/teslashibe/go-gesture/pkg/mode"
	"github.com/teslashibe/go-gesture/pkg/store"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

// ErrNotHomeAutomation is returned by HandleButton outside home automation mode.
var ErrNotHomeAutomation = errors.New("engine: relay buttons require home automation mode")

const diagnosticIntro = "Starting system diagnostic. Please wait..."

// ModeResult is returned by SetMode.
type ModeResult struct {
	Success     bool      `json:"success"`
	Changed     bool      `json:"changed"`
	CurrentMode mode.Mode `json:"current_mode"`
}

// SetMode switches the operating mode on operator request. A mode_change
// event is published even when the mode is unchanged.
func (e *Engine) SetMode(ctx context.Context, m mode.Mode) ModeResult {
	fx := e.begin()
	defer e.end(ctx)

	changed := e.modes.Set(m)
	if !changed {
		fx.publish(EventModeChange, map[string]any{"mode": e.modes.Current()})
	}
	return ModeResult{Success: true, Changed: changed, CurrentMode: e.modes.Current()}
}

// Mode returns the operating mode.
func (e *Engine) Mode() mode.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modes.Current()
}

// SetContext switches the interaction context and applies its preset.
func (e *Engine) SetContext(ctx context.Context, c interaction.Context) error {
	if _, err := interaction.ParseContext(string(c)); err != nil {
		return err
	}
	e.begin()
	defer e.end(ctx)
	e.switchContextLocked(c)
	return nil
}

// RecognizeActivity infers the context from recent motion and switches to
// it when it differs from the current one.
func (e *Engine) RecognizeActivity(ctx context.Context, points []interaction.MotionPoint) (interaction.Context, bool) {
	e.begin()
	defer e.end(ctx)
	c := interaction.Recognize(points, e.context)
	if c == e.context {
		return c, false
	}
	e.switchContextLocked(c)
	return c, true
}

// Context returns the interaction context.
func (e *Engine) Context() interaction.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.context
}

// FeedbackResult is returned by ReceiveFeedback.
type FeedbackResult struct {
	Message         string  `json:"message,omitempty"`
	MinStableFrames int     `json:"min_stable_frames"`
	ResponseSpeed   float64 `json:"response_speed"`
}

// ReceiveFeedback applies an explicit rating, logs it and saves preferences.
func (e *Engine) ReceiveFeedback(ctx context.Context, kind string, rating float64) (FeedbackResult, error) {
	fx := e.begin()
	defer e.end(ctx)

	msg, err := e.model.ReceiveFeedback(kind, rating, fx.at, e.filter)
	if err != nil {
		return FeedbackResult{}, err
	}
	fx.say(msg)
	res := FeedbackResult{
		Message:         msg,
		MinStableFrames: e.filter.MinStableFrames(),
		ResponseSpeed:   e.model.ResponseSpeed(),
	}
	fx.publish(EventFeedback, map[string]any{"kind": kind, "rating": rating, "result": res})

	if e.store != nil {
		entry := store.FeedbackEntry{Kind: kind, Rating: rating, CreatedAt: fx.at}
		fx.io = append(fx.io, func(ctx context.Context) {
			if err := e.store.RecordFeedback(ctx, entry); err != nil {
				e.logger.Warn("failed to log feedback", "err", err)
			}
		})
	}
	e.savePreferencesLocked()
	return res, nil
}

// RegisterGesture adds or replaces a custom gesture response. A nil
// response registers the default one.
func (e *Engine) RegisterGesture(ctx context.Context, name string, r *announce.Response) (updated bool, err error) {
	name = strings.TrimSpace(name)
	fx := e.begin()
	defer e.end(ctx)

	updated, err = e.library.Register(name, r)
	if err != nil {
		return false, err
	}
	if updated {
		fx.say(fmt.Sprintf("Gesture %s already exists. Updating responses.", name))
	} else {
		fx.say("Adding new gesture: " + name)
	}
	fx.say(fmt.Sprintf("Gesture %s has been added to the recognition library.", name))
	fx.publish(EventGestureAdded, map[string]any{"name": name, "updated": updated})

	if e.store != nil {
		resp, err := e.library.Get(name)
		if err == nil {
			g := store.CustomGesture{Name: name, Response: resp, UpdatedAt: fx.at}
			fx.io = append(fx.io, func(ctx context.Context) {
				if err := e.store.SaveGesture(ctx, g); err != nil {
					e.logger.Warn("failed to save gesture", "gesture", name, "err", err)
				}
			})
		}
	}
	return updated, nil
}

// HandleButton toggles a relay output. It only acts in home automation mode.
// The token is written under the engine lock so the mode cannot change
// between the check and the send.
func (e *Engine) HandleButton(ctx context.Context, button int, on bool) (hardware.Command, error) {
	fx := e.begin()
	defer e.end(ctx)

	if e.modes.Current() != mode.HomeAutomation {
		return hardware.Command{}, ErrNotHomeAutomation
	}
	if _, _, err := hardware.Token(button, on); err != nil {
		return hardware.Command{}, err
	}
	if e.relay == nil {
		return hardware.Command{}, hardware.ErrNotConnected
	}

	cmd, err := e.relay.Trigger(button, on)
	if err != nil {
		e.logger.Warn("relay command failed", "button", button, "err", err)
		return cmd, err
	}
	fx.say(hardware.Confirmation(button, on))
	fx.publish(EventButtonUpdate, map[string]any{"button": button + 1, "state": cmd.State(), "device": cmd.Device})
	return cmd, nil
}

// DeviceOutput publishes a line read from the relay board.
func (e *Engine) DeviceOutput(line string) {
	e.pub.Publish(newEvent(EventDevice, e.now(), map[string]any{"line": line}))
}

// Interrupt stops the current output after the user talks over it.
// Repeated interruptions make responses shorter.
func (e *Engine) Interrupt(ctx context.Context) bool {
	if n := e.out.Flush(); n > 0 {
		e.logger.Debug("dropped pending output", "count", n)
	}
	fx := e.begin()
	defer e.end(ctx)

	brief := e.model.RecordInterruption()
	if brief {
		fx.say("I'll be more brief.")
	}
	e.filter.Reset()
	e.combos.Reset()
	e.setAmbientLocked(feedback.AmbientReady)
	fx.publish(EventInterruption, map[string]any{"brief": brief, "verbosity": e.model.Verbosity()})
	return brief
}

// Report is the result of a diagnostic run.
type Report struct {
	Working       []string `json:"working"`
	Unavailable   []string `json:"unavailable"`
	Interactions  int      `json:"interactions"`
	TopGesture    string   `json:"top_gesture,omitempty"`
	Text          string   `json:"text"`
	Recalibration string   `json:"recalibration,omitempty"`
}

// diagnosticRecalibrateAbove is the interaction count above which a
// diagnostic also recalibrates.
const diagnosticRecalibrateAbove = 100

// Diagnostic reports which components are working and speaks the result.
func (e *Engine) Diagnostic(ctx context.Context) Report {
	fx := e.begin()
	defer e.end(ctx)

	fx.say(diagnosticIntro)
	r := e.diagnosticLocked()
	fx.say(r.Text)
	fx.say(r.Recalibration)
	fx.publish(EventDiagnostic, r)
	return r
}

func (e *Engine) diagnosticLocked() Report {
	components := e.out.Devices()
	components["Voice recognition"] = e.voiceInput
	components["Preference store"] = e.store != nil && e.store.Enabled()
	components["Relay board"] = e.relay != nil

	var r Report
	for name, ok := range components {
		if ok {
			r.Working = append(r.Working, name)
		} else {
			r.Unavailable = append(r.Unavailable, name)
		}
	}
	sort.Strings(r.Working)
	sort.Strings(r.Unavailable)
	r.Interactions = e.controller.Interactions()
	r.TopGesture = e.model.TopGesture()

	var b strings.Builder
	b.WriteString("Diagnostic complete. ")
	if len(r.Working) > 0 {
		fmt.Fprintf(&b, "Working components: %s. ", strings.Join(r.Working, ", "))
	}
	if len(r.Unavailable) > 0 {
		fmt.Fprintf(&b, "Unavailable components: %s. ", strings.Join(r.Unavailable, ", "))
	}
	fmt.Fprintf(&b, "System has registered %d interactions.", r.Interactions)
	if r.TopGesture != "" {
		fmt.Fprintf(&b, " Most frequent gesture: %s.", r.TopGesture)
	}
	r.Text = b.String()

	if r.Interactions > diagnosticRecalibrateAbove {
		r.Recalibration = e.model.Recalibrate(e.filter)
	}
	return r
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	Active          bool                   `json:"active"`
	Mode            mode.Mode              `json:"mode"`
	Context         interaction.Context    `json:"context"`
	Ambient         string                 `json:"ambient"`
	LastSample      *gesture.Sample        `json:"last_sample,omitempty"`
	Window          int                    `json:"window"`
	MinStableFrames int                    `json:"min_stable_frames"`
	Cooldown        announce.CooldownState `json:"cooldown"`
	EffectiveCool   time.Duration          `json:"effective_cooldown"`
	ComboTimeout    time.Duration          `json:"combo_timeout"`
	ComboPending    []string               `json:"combo_pending"`
	Model           usermodel.Snapshot     `json:"user_model"`
	Gestures        []string               `json:"gestures"`
	Commands        []string               `json:"commands"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Active:          e.active,
		Mode:            e.modes.Current(),
		Context:         e.context,
		Ambient:         e.ambient,
		Window:          e.filter.Len(),
		MinStableFrames: e.filter.MinStableFrames(),
		Cooldown:        e.controller.State(),
		EffectiveCool:   e.controller.EffectiveCooldown(),
		ComboTimeout:    e.combos.Timeout(),
		ComboPending:    e.combos.Pending(),
		Model:           e.model.Snapshot(),
		Gestures:        e.library.Names(),
		Commands:        e.commands.Rules(e.context),
	}
	if e.hasSample {
		last := e.lastSample
		s.LastSample = &last
	}
	return s
}
