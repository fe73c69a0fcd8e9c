package engine

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-gesture/pkg/combo"
	"github.com/teslashibe/go-gesture/pkg/command"
	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/interaction"
)

const detailedHelp = `Welcome to the Gesture Control System! Here's how to use it:

Basic commands:
- "What gesture" tells you the current recognized gesture
- "Reset" clears the gesture history
- "Pause feedback" temporarily stops voice responses
- "Resume feedback" restarts voice responses
- "Stop detection" ends the session

You can also say:
- "Game mode" to optimize for gaming
- "Work mode" for professional settings
- "Reduce verbosity" for shorter responses
- "Increase detail" for more information

Try showing different hand gestures like Open palm, Closed fist,
Pointing finger, OK sign, Peace sign, and many more!`

const quickHelp = `Available commands: gesture info, reset, pause/resume feedback,
switch modes (game/work/casual), adjust verbosity, and stop detection.`

// detailedHelpBelow is the interaction count under which new users get the
// long help text.
const detailedHelpBelow = 10

// HandleTranscript interprets one transcribed utterance.
func (e *Engine) HandleTranscript(ctx context.Context, text string) command.Outcome {
	fx := e.begin()
	defer e.end(ctx)

	out := e.commands.Interpret(text, e.context, fx.at)
	switch out.Status {
	case command.StatusAccepted:
		fx.say(out.Reply)
		fx.publish(EventCommand, out)
		e.logger.Info("voice command", "rule", out.Rule, "scope", out.Scope, "confidence", out.Confidence)
	case command.StatusUnmatched:
		fx.publish(EventCommand, out)
		e.logger.Debug("unmatched command", "text", out.Text)
	default:
		e.logger.Debug("utterance ignored", "text", out.Text, "status", out.Status, "confidence", out.Confidence)
	}
	return out
}

// Handlers run under the engine lock from HandleTranscript.
func (e *Engine) registerCommands() {
	c := e.commands

	c.HandleContext(interaction.Gaming, command.Rule{
		Name:    "quick_combo",
		Phrases: []string{"quick combo"},
		Handle: func(string) string {
			e.combos.SetTimeout(combo.QuickTimeout)
			return "Quick combo mode activated. Use rapid gestures for special moves."
		},
	})
	c.HandleContext(interaction.Gaming, command.Rule{
		Name:    "normalize_sensitivity",
		Phrases: []string{"normalize sensitivity"},
		Handle: func(string) string {
			e.filter.SetMinStableFrames(e.cfg.Stabilizer.MinStableFrames)
			return "Restoring normal gesture sensitivity."
		},
	})
	c.HandleContext(interaction.Presentation, command.Rule{
		Name:    "next_slide",
		Phrases: []string{"next slide"},
		Handle: func(string) string {
			e.fx.slides = append(e.fx.slides, feedback.SlideNext)
			return "Advancing to next slide."
		},
	})
	c.HandleContext(interaction.Presentation, command.Rule{
		Name:    "previous_slide",
		Phrases: []string{"previous slide"},
		Handle: func(string) string {
			e.fx.slides = append(e.fx.slides, feedback.SlidePrevious)
			return "Going back to previous slide."
		},
	})
	c.HandleContext(interaction.Accessibility, command.Rule{
		Name:    "increase_contrast",
		Phrases: []string{"increase contrast"},
		Handle: func(string) string {
			e.setAmbientLocked(feedback.AmbientActive)
			return "Increasing visual contrast for gesture feedback."
		},
	})
	c.HandleContext(interaction.Accessibility, command.Rule{
		Name:    "slower_responses",
		Phrases: []string{"slower responses"},
		Handle: func(string) string {
			e.model.SetResponseSpeed(1.5)
			return "Slowing down response timing for better comprehension."
		},
	})

	c.HandleGlobal(command.Rule{
		Name:    "current_gesture",
		Phrases: []string{"what gesture", "current gesture"},
		Handle: func(string) string {
			last, at := e.controller.LastGesture()
			if last == "" || last == gesture.Neutral {
				return "No gesture detected"
			}
			if e.model.Verbosity() > 0.7 {
				return fmt.Sprintf("Current gesture is %s, last detected at %s", last, at.Format("15:04:05"))
			}
			return "Current gesture: " + last
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "reset",
		Phrases: []string{"reset", "clear"},
		Handle: func(string) string {
			e.filter.Reset()
			e.controller.Reset()
			e.combos.Reset()
			e.lastChanged = gesture.Decision{}
			e.setAmbientLocked(feedback.AmbientReady)
			return "System reset complete"
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "stop_detection",
		Phrases: []string{"stop detection", "end session"},
		Handle: func(string) string {
			e.active = false
			e.setAmbientLocked(feedback.AmbientShutdown)
			return "Stopping gesture detection. Thank you for using our system."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "pause_feedback",
		Phrases: []string{"pause feedback", "silent mode"},
		Handle: func(string) string {
			e.controller.Pause()
			e.setAmbientLocked(feedback.AmbientSilent)
			return "Voice feedback paused. Gesture recognition continues silently."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "resume_feedback",
		Phrases: []string{"resume feedback", "voice on"},
		Handle: func(string) string {
			e.controller.Resume()
			e.active = true
			e.setAmbientLocked(feedback.AmbientActive)
			return "Voice feedback resumed. I'll respond to your gestures again."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "help",
		Phrases: []string{"help", "what can i say"},
		Handle: func(string) string {
			if e.controller.Interactions() < detailedHelpBelow {
				return detailedHelp
			}
			return quickHelp
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "gaming_mode",
		Phrases: []string{"game mode", "gaming mode"},
		Handle: func(string) string {
			e.switchContextLocked(interaction.Gaming)
			return "Game mode activated. Gesture sensitivity increased and shortcuts enabled."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "work_mode",
		Phrases: []string{"work mode", "professional mode"},
		Handle: func(string) string {
			e.switchContextLocked(interaction.Work)
			return "Work mode activated. Using professional tone and reduced verbosity."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "casual_mode",
		Phrases: []string{"casual mode"},
		Handle: func(string) string {
			e.switchContextLocked(interaction.Casual)
			return "Casual mode activated. Let's keep things relaxed!"
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "presentation_mode",
		Phrases: []string{"presentation mode"},
		Handle: func(string) string {
			e.switchContextLocked(interaction.Presentation)
			return "Presentation mode activated. Use Next, Previous and Start gestures to control your slides."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "accessibility_mode",
		Phrases: []string{"accessibility mode"},
		Handle: func(string) string {
			e.switchContextLocked(interaction.Accessibility)
			return "Accessibility mode activated. Confidence levels will be included in every response."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "save_preferences",
		Phrases: []string{"remember my preference", "save this setting"},
		Handle: func(string) string {
			e.savePreferencesLocked()
			return "User preferences saved. I'll remember these settings for future sessions."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "reduce_verbosity",
		Phrases: []string{"reduce verbosity", "be more brief"},
		Handle: func(string) string {
			e.model.AdjustVerbosity(-e.model.VerbosityStep())
			return "I'll be more concise."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "increase_detail",
		Phrases: []string{"increase detail", "more information"},
		Handle: func(string) string {
			e.model.AdjustVerbosity(e.model.VerbosityStep())
			return "I'll provide more detailed responses going forward."
		},
	})
	c.HandleGlobal(command.Rule{
		Name:    "diagnostic",
		Phrases: []string{"run diagnostic", "system diagnostic"},
		Handle: func(string) string {
			r := e.diagnosticLocked()
			e.fx.say(diagnosticIntro)
			e.fx.publish(EventDiagnostic, r)
			if r.Recalibration != "" {
				return r.Text + " " + r.Recalibration
			}
			return r.Text
		},
	})
}

// switchContextLocked applies the preset of c.
func (e *Engine) switchContextLocked(c interaction.Context) {
	prev := e.context
	e.context = c
	p := interaction.Presets(c)
	if p.MinStableFrames > 0 {
		e.filter.SetMinStableFrames(p.MinStableFrames)
	}
	if p.ResponseSpeed > 0 {
		e.model.SetResponseSpeed(p.ResponseSpeed)
	}
	if p.Verbosity > 0 {
		e.model.SetVerbosity(p.Verbosity)
	}
	if p.Formality > 0 {
		e.model.SetFormality(p.Formality)
	}
	if p.Ambient != "" {
		e.setAmbientLocked(p.Ambient)
	}
	e.controller.SetAnnotate(c == interaction.Accessibility)
	e.fx.publish(EventContextChange, map[string]any{"context": c, "previous": prev})
	e.logger.Info("context changed", "from", prev, "to", c)
}
