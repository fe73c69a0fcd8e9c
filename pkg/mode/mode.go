// Package mode implements the two-state operating mode machine that decides
// whether gestures drive general recognition or home automation.
package mode

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Mode is the current operating mode.
type Mode string

const (
	GeneralRecognition Mode = "general_recognition"
	HomeAutomation     Mode = "home_automation"
)

// ErrUnknownMode is returned by ParseMode for unrecognized names.
var ErrUnknownMode = errors.New("mode: unknown mode")

// ParseMode converts an operator-supplied name to a Mode.
// Short aliases "general" and "home" are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(GeneralRecognition), "general":
		return GeneralRecognition, nil
	case string(HomeAutomation), "home":
		return HomeAutomation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Observer is called with the new mode after every transition.
type Observer func(Mode)

// Config holds the transition gestures and the confidence gate.
type Config struct {
	ActivationGesture   string
	DeactivationGesture string
	MinConfidence       float64
}

// DefaultConfig returns Rock to enter home automation, Victory to leave,
// gated at 0.75.
func DefaultConfig() Config {
	return Config{
		ActivationGesture:   gesture.Rock,
		DeactivationGesture: gesture.Victory,
		MinConfidence:       0.75,
	}
}

// Machine holds the current mode and its observers.
type Machine struct {
	cfg Config

	mu        sync.Mutex
	current   Mode
	observers []Observer
}

// New creates a machine in GeneralRecognition.
func New(cfg Config) *Machine {
	if cfg.ActivationGesture == "" {
		cfg.ActivationGesture = gesture.Rock
	}
	if cfg.DeactivationGesture == "" {
		cfg.DeactivationGesture = gesture.Victory
	}
	return &Machine{
		cfg:     cfg,
		current: GeneralRecognition,
	}
}

// Current returns the active mode.
func (m *Machine) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers an observer. Observers run in registration order.
func (m *Machine) Subscribe(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Process feeds one stabilized decision into the machine and reports
// whether it caused a transition.
func (m *Machine) Process(label string, confidence float64) bool {
	if confidence < m.cfg.MinConfidence {
		return false
	}

	m.mu.Lock()
	var next Mode
	switch {
	case m.current == GeneralRecognition && label == m.cfg.ActivationGesture:
		next = HomeAutomation
	case m.current == HomeAutomation && label == m.cfg.DeactivationGesture:
		next = GeneralRecognition
	default:
		m.mu.Unlock()
		return false
	}
	observers := m.transitionLocked(next)
	m.mu.Unlock()

	notify(observers, next)
	return true
}

// SwitchToGeneral forces GeneralRecognition. It returns false when the
// machine is already in that mode.
func (m *Machine) SwitchToGeneral() bool {
	return m.Set(GeneralRecognition)
}

// SwitchToHomeAutomation forces HomeAutomation. It returns false when the
// machine is already in that mode.
func (m *Machine) SwitchToHomeAutomation() bool {
	return m.Set(HomeAutomation)
}

// Set moves to target, notifying observers when the mode changes.
func (m *Machine) Set(target Mode) bool {
	m.mu.Lock()
	if m.current == target {
		m.mu.Unlock()
		return false
	}
	observers := m.transitionLocked(target)
	m.mu.Unlock()

	notify(observers, target)
	return true
}

// transitionLocked applies the change and returns a copy of the observer
// list so callbacks run without holding the lock.
func (m *Machine) transitionLocked(next Mode) []Observer {
	m.current = next
	out := make([]Observer, len(m.observers))
	copy(out, m.observers)
	return out
}

func notify(observers []Observer, m Mode) {
	for _, o := range observers {
		o(m)
	}
}

// Config returns the machine configuration.
func (m *Machine) Config() Config {
	return m.cfg
}
