package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/interaction"
	"github.com/teslashibe/go-gesture/pkg/store"
)

const shutdownMessage = "Shutting down gesture control system. Thank you for using our service."

// Greeting returns the start-up greeting for the hour of day.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning! Gesture control activated and ready for your input."
	case hour >= 12 && hour < 17:
		return "Good afternoon! Gesture control system initialized and awaiting your commands."
	default:
		return "Good evening! Gesture control system is up and running."
	}
}

// Start restores saved preferences and custom gestures, picks the starting
// context and greets the user.
func (e *Engine) Start(ctx context.Context) error {
	var (
		prefs    store.Preferences
		restored bool
		custom   []store.CustomGesture
	)
	if e.store != nil {
		p, ok, err := e.store.LoadPreferences(ctx)
		if err != nil {
			e.logger.Warn("failed to load preferences", "err", err)
		}
		prefs, restored = p, ok
		if custom, err = e.store.LoadGestures(ctx); err != nil {
			e.logger.Warn("failed to load custom gestures", "err", err)
		}
	}
	for _, g := range custom {
		resp := g.Response
		if _, err := e.library.Register(g.Name, &resp); err != nil {
			e.logger.Warn("skipping stored gesture", "gesture", g.Name, "err", err)
		}
	}

	fx := e.begin()
	defer e.end(ctx)

	if restored {
		e.model.Restore(prefs.Model)
		e.controller.SetInteractions(prefs.Interactions)
		if c, err := interaction.ParseContext(prefs.Context); err == nil {
			e.switchContextLocked(c)
		}
		if prefs.MinStableFrames > 0 {
			e.filter.SetMinStableFrames(prefs.MinStableFrames)
		}
		e.logger.Info("preferences restored", "context", prefs.Context, "interactions", prefs.Interactions)
	} else if e.cfg.DetectContext {
		if c, ok := interaction.DetectFromClock(fx.at); ok {
			e.switchContextLocked(c)
		}
	}

	e.active = true
	fx.say(Greeting(fx.at.Hour()))
	e.setAmbientLocked(feedback.AmbientReady)
	fx.publish(EventSystemStatus, map[string]any{
		"status":   "started",
		"mode":     e.modes.Current(),
		"context":  e.context,
		"gestures": len(custom),
	})
	e.logger.Info("engine started", "mode", e.modes.Current(), "context", e.context, "custom_gestures", len(custom))
	return nil
}

// Stop saves preferences, says goodbye and turns the lights off.
func (e *Engine) Stop(ctx context.Context) error {
	fx := e.begin()
	e.active = false
	fx.say(shutdownMessage)
	e.setAmbientLocked(feedback.AmbientShutdown)
	fx.publish(EventSystemStatus, map[string]any{"status": "stopped"})
	var prefs store.Preferences
	if e.store != nil {
		prefs = e.preferencesLocked()
	}
	e.end(ctx)

	if e.store != nil {
		if err := e.writes.Close(ctx); err != nil {
			e.logger.Warn("pending store writes abandoned", "err", err)
		}
		if err := e.store.SavePreferences(ctx, prefs); err != nil {
			return err
		}
	}
	e.logger.Info("engine stopped")
	return nil
}

// Run consumes samples and transcripts until both channels close or ctx is
// cancelled. Either channel may be nil.
func (e *Engine) Run(ctx context.Context, samples <-chan gesture.Sample, transcripts <-chan string) error {
	g, ctx := errgroup.WithContext(ctx)

	if samples != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case s, ok := <-samples:
					if !ok {
						return nil
					}
					if out := e.ProcessSample(ctx, s); out.Status == StatusFailed {
						e.logger.Debug("sample rejected", "label", s.Label, "err", out.Error)
					}
				}
			}
		})
	}
	if transcripts != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case text, ok := <-transcripts:
					if !ok {
						return nil
					}
					e.HandleTranscript(ctx, text)
				}
			}
		})
	}
	return g.Wait()
}
