// Package stabilizer turns a noisy stream of classifier samples into a
// stable gesture decision using a confidence-weighted vote over a short
// sliding window.
package stabilizer

import (
	"errors"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Bounds for the stability requirement.
const (
	MinStableFramesFloor   = 2
	MinStableFramesCeiling = 5
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("stabilizer: invalid config")

// Config holds the tunable parameters of the filter.
type Config struct {
	WindowSize      int     // Samples kept in the window (FIFO)
	MinStableFrames int     // Samples required before any decision
	StabilityFactor float64 // Winner needs weight >= MinStableFrames * StabilityFactor
}

// DefaultConfig returns the stock filter parameters.
func DefaultConfig() Config {
	return Config{
		WindowSize:      5,
		MinStableFrames: 3,
		StabilityFactor: 0.6,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("window size must be positive"))
	}
	if c.MinStableFrames < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("min stable frames must be positive"))
	}
	if c.StabilityFactor < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("stability factor must not be negative"))
	}
	return nil
}

// Filter is the stabilization window. It is not safe for concurrent use;
// the owning engine serializes access.
type Filter struct {
	cfg    Config
	window []gesture.Sample
}

// New creates a filter. Invalid values fall back to DefaultConfig.
func New(cfg Config) *Filter {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	return &Filter{
		cfg:    cfg,
		window: make([]gesture.Sample, 0, cfg.WindowSize),
	}
}

// Observe appends s to the window and returns the current stable decision.
// ok is false while the window holds fewer than MinStableFrames samples.
func (f *Filter) Observe(s gesture.Sample) (gesture.Decision, bool) {
	if len(f.window) == f.cfg.WindowSize {
		copy(f.window, f.window[1:])
		f.window = f.window[:len(f.window)-1]
	}
	f.window = append(f.window, s)

	if len(f.window) < f.cfg.MinStableFrames {
		return gesture.Decision{}, false
	}
	return f.decide(), true
}

// decide runs the weighted vote. Labels are visited in first-seen order and
// only a strictly greater weight replaces the leader.
func (f *Filter) decide() gesture.Decision {
	type tally struct {
		count int
		sum   float64
	}
	order := make([]string, 0, len(f.window))
	tallies := make(map[string]*tally, len(f.window))
	for _, s := range f.window {
		t, ok := tallies[s.Label]
		if !ok {
			t = &tally{}
			tallies[s.Label] = t
			order = append(order, s.Label)
		}
		t.count++
		t.sum += s.Confidence
	}

	var (
		winner     string
		bestWeight = -1.0
		bestAvg    float64
	)
	for _, label := range order {
		t := tallies[label]
		avg := t.sum / float64(t.count)
		weight := float64(t.count) * avg
		if weight > bestWeight {
			winner, bestWeight, bestAvg = label, weight, avg
		}
	}

	if bestWeight >= float64(f.cfg.MinStableFrames)*f.cfg.StabilityFactor {
		return gesture.Decision{Gesture: winner, Confidence: bestAvg}
	}
	return gesture.NeutralDecision
}

// Reset empties the window.
func (f *Filter) Reset() {
	f.window = f.window[:0]
}

// Len returns the number of samples in the window.
func (f *Filter) Len() int {
	return len(f.window)
}

// Window returns a copy of the current window, oldest first.
func (f *Filter) Window() []gesture.Sample {
	out := make([]gesture.Sample, len(f.window))
	copy(out, f.window)
	return out
}

// MinStableFrames returns the current stability requirement.
func (f *Filter) MinStableFrames() int {
	return f.cfg.MinStableFrames
}

// SetMinStableFrames changes the stability requirement, clamped to
// [MinStableFramesFloor, MinStableFramesCeiling].
func (f *Filter) SetMinStableFrames(n int) {
	f.cfg.MinStableFrames = ClampFrames(n)
}

// Config returns the active configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// ClampFrames limits n to the supported stability range.
func ClampFrames(n int) int {
	if n < MinStableFramesFloor {
		return MinStableFramesFloor
	}
	if n > MinStableFramesCeiling {
		return MinStableFramesCeiling
	}
	return n
}
