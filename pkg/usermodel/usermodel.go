// Package usermodel holds the adaptive per-user state: response pacing,
// verbosity, formality, gesture preferences and recognition success rates.
//
// A Model is safe for concurrent use. Every update runs under the model's
// own lock and is applied completely or not at all.
package usermodel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Feedback kinds understood by ReceiveFeedback.
const (
	FeedbackSpeed    = "speed"
	FeedbackAccuracy = "accuracy"
)

// Response styles chosen by formality.
const (
	StylePlayful      = "playful"
	StyleCasual       = "casual"
	StyleProfessional = "professional"
)

// Bounds on the adaptive parameters.
const (
	MinResponseSpeed = 0.5
	MaxResponseSpeed = 1.5
	MinFrames        = 2
	MaxFrames        = 5
)

var (
	// ErrUnknownFeedback is returned for feedback kinds other than speed and accuracy.
	ErrUnknownFeedback = errors.New("usermodel: unknown feedback type")

	// ErrInvalidRating is returned when a rating falls outside [0, 1].
	ErrInvalidRating = errors.New("usermodel: rating must be within [0, 1]")
)

// StabilityTuner exposes the stabilization requirement that feedback and
// recalibration adjust.
type StabilityTuner interface {
	MinStableFrames() int
	SetMinStableFrames(n int)
}

// Config holds the learning constants.
type Config struct {
	Alpha              float64 // EMA learning rate for success rates
	DominanceShare     float64 // Share of volume that marks a preferred gesture
	SeedSuccess        float64 // Success rate seeded for dominant gestures
	TopGestures        int
	LowSuccess         float64 // Recalibration tightens below this mean
	HighSuccess        float64 // Recalibration relaxes above this mean
	FeedbackLow        float64
	FeedbackHigh       float64
	SpeedStep          float64
	VerbosityStep      float64
	InterruptLimit     int
	InterruptStep      float64
	InterruptVerbosity float64 // Floor for verbosity lowered by interruptions
}

// DefaultConfig returns the stock learning constants.
func DefaultConfig() Config {
	return Config{
		Alpha:              0.2,
		DominanceShare:     0.4,
		SeedSuccess:        0.9,
		TopGestures:        3,
		LowSuccess:         0.6,
		HighSuccess:        0.85,
		FeedbackLow:        0.3,
		FeedbackHigh:       0.7,
		SpeedStep:          0.1,
		VerbosityStep:      0.2,
		InterruptLimit:     2,
		InterruptStep:      0.1,
		InterruptVerbosity: 0.2,
	}
}

// FeedbackRecord is the most recent rating of one kind.
type FeedbackRecord struct {
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the model, also used for persistence.
type Snapshot struct {
	ResponseSpeed  float64                   `json:"response_speed"`
	Verbosity      float64                   `json:"verbosity"`
	Formality      float64                   `json:"formality"`
	Preferred      map[string]int            `json:"preferred_gestures"`
	SuccessRate    map[string]float64        `json:"success_rate"`
	UsageByHour    map[int]int               `json:"usage_by_hour"`
	LastFeedback   map[string]FeedbackRecord `json:"last_feedback"`
	Interruptions  int                       `json:"interruptions"`
	TotalGestures  int                       `json:"total_gestures"`
	MeanSuccess    float64                   `json:"mean_success"`
	PreferredStyle string                    `json:"style"`
}

// Model is the adaptive user model.
type Model struct {
	cfg Config

	mu            sync.Mutex
	responseSpeed float64
	verbosity     float64
	formality     float64
	preferred     map[string]int
	success       map[string]float64
	usageByHour   map[int]int
	lastFeedback  map[string]FeedbackRecord
	interruptions int
}

// New creates a model with neutral defaults.
func New(cfg Config) *Model {
	return &Model{
		cfg:           cfg,
		responseSpeed: 1.0,
		verbosity:     0.5,
		formality:     0.5,
		preferred:     make(map[string]int),
		success:       make(map[string]float64),
		usageByHour:   make(map[int]int),
		lastFeedback:  make(map[string]FeedbackRecord),
	}
}

// RecordGesture counts one raw non-neutral detection.
func (m *Model) RecordGesture(label string) {
	m.mu.Lock()
	m.preferred[label]++
	m.mu.Unlock()
}

// RecordOutcome folds one recognition outcome into the gesture's success
// rate using an exponential moving average. Unseen gestures start at 0.
func (m *Model) RecordOutcome(label string, success bool) {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	m.mu.Lock()
	old := m.success[label]
	m.success[label] = old*(1-m.cfg.Alpha) + outcome*m.cfg.Alpha
	m.mu.Unlock()
}

// UpdateUsage runs the periodic usage-pattern pass: it counts the current
// hour and seeds success rates for gestures that dominate usage.
func (m *Model) UpdateUsage(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usageByHour[now.Hour()]++

	total := 0
	for _, n := range m.preferred {
		total += n
	}
	if total == 0 {
		return
	}
	for _, g := range m.topLocked(m.cfg.TopGestures) {
		share := float64(m.preferred[g]) / float64(total)
		if share > m.cfg.DominanceShare {
			if _, ok := m.success[g]; !ok {
				m.success[g] = m.cfg.SeedSuccess
			}
		}
	}
}

// topLocked returns up to n most used gestures, ties broken by name.
func (m *Model) topLocked(n int) []string {
	names := make([]string, 0, len(m.preferred))
	for g := range m.preferred {
		names = append(names, g)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := m.preferred[names[i]], m.preferred[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// TopGesture returns the most used gesture, or "" when none was recorded.
func (m *Model) TopGesture() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	top := m.topLocked(1)
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

// ReceiveFeedback applies an explicit rating. It returns the sentence to
// speak, which may be empty when the rating is neutral.
func (m *Model) ReceiveFeedback(kind string, rating float64, now time.Time, tuner StabilityTuner) (string, error) {
	if kind != FeedbackSpeed && kind != FeedbackAccuracy {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeedback, kind)
	}
	if rating < 0 || rating > 1 {
		return "", fmt.Errorf("%w: %v", ErrInvalidRating, rating)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFeedback[kind] = FeedbackRecord{Rating: rating, Timestamp: now}

	switch kind {
	case FeedbackSpeed:
		switch {
		case rating < m.cfg.FeedbackLow:
			m.responseSpeed = clamp(m.responseSpeed-m.cfg.SpeedStep, MinResponseSpeed, MaxResponseSpeed)
			return "I'll be more responsive", nil
		case rating > m.cfg.FeedbackHigh:
			m.responseSpeed = clamp(m.responseSpeed+m.cfg.SpeedStep, MinResponseSpeed, MaxResponseSpeed)
			return "I'll slow down my responses", nil
		}
	case FeedbackAccuracy:
		if tuner == nil {
			return "", nil
		}
		switch {
		case rating < m.cfg.FeedbackLow:
			tuner.SetMinStableFrames(clampInt(tuner.MinStableFrames()+1, MinFrames, MaxFrames))
			return "I'll be more careful with gesture recognition", nil
		case rating > m.cfg.FeedbackHigh:
			tuner.SetMinStableFrames(clampInt(tuner.MinStableFrames()-1, MinFrames, MaxFrames))
		}
	}
	return "", nil
}

// Recalibrate adjusts the stability requirement from the mean success rate.
// It returns the sentence to speak, or "" when nothing changed.
func (m *Model) Recalibrate(tuner StabilityTuner) string {
	if tuner == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.success) == 0 {
		return ""
	}
	mean := m.meanLocked()
	switch {
	case mean < m.cfg.LowSuccess:
		tuner.SetMinStableFrames(clampInt(tuner.MinStableFrames()+1, MinFrames, MaxFrames))
		return "Increasing gesture stability requirements for better accuracy."
	case mean > m.cfg.HighSuccess:
		tuner.SetMinStableFrames(clampInt(tuner.MinStableFrames()-1, MinFrames, MaxFrames))
		return "Decreasing gesture stability requirements for faster response."
	}
	return ""
}

func (m *Model) meanLocked() float64 {
	if len(m.success) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range m.success {
		sum += v
	}
	return sum / float64(len(m.success))
}

// RecordInterruption counts an interruption. Once more than the configured
// limit have been seen, verbosity drops one step and true is returned.
func (m *Model) RecordInterruption() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interruptions++
	if m.interruptions <= m.cfg.InterruptLimit {
		return false
	}
	m.verbosity = clamp(m.verbosity-m.cfg.InterruptStep, m.cfg.InterruptVerbosity, 1)
	return true
}

// AdjustVerbosity moves verbosity by delta within [0, 1] and returns the
// new value.
func (m *Model) AdjustVerbosity(delta float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verbosity = clamp(m.verbosity+delta, 0, 1)
	return m.verbosity
}

// VerbosityStep is the amount a verbosity command moves the setting.
func (m *Model) VerbosityStep() float64 {
	return m.cfg.VerbosityStep
}

// Style returns the response style for the current formality.
func (m *Model) Style() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return styleFor(m.formality)
}

func styleFor(formality float64) string {
	switch {
	case formality < 0.3:
		return StylePlayful
	case formality > 0.7:
		return StyleProfessional
	default:
		return StyleCasual
	}
}

// ResponseSpeed returns the cooldown multiplier.
func (m *Model) ResponseSpeed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responseSpeed
}

// SetResponseSpeed sets the cooldown multiplier within its bounds.
func (m *Model) SetResponseSpeed(v float64) {
	m.mu.Lock()
	m.responseSpeed = clamp(v, MinResponseSpeed, MaxResponseSpeed)
	m.mu.Unlock()
}

// Verbosity returns the verbosity setting.
func (m *Model) Verbosity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verbosity
}

// SetVerbosity sets verbosity within [0, 1].
func (m *Model) SetVerbosity(v float64) {
	m.mu.Lock()
	m.verbosity = clamp(v, 0, 1)
	m.mu.Unlock()
}

// Formality returns the formality setting.
func (m *Model) Formality() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formality
}

// SetFormality sets formality within [0, 1].
func (m *Model) SetFormality(v float64) {
	m.mu.Lock()
	m.formality = clamp(v, 0, 1)
	m.mu.Unlock()
}

// SuccessRate returns the EMA for label and whether it has been set.
func (m *Model) SuccessRate(label string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.success[label]
	return v, ok
}

// Snapshot returns a deep copy of the model.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		ResponseSpeed:  m.responseSpeed,
		Verbosity:      m.verbosity,
		Formality:      m.formality,
		Preferred:      make(map[string]int, len(m.preferred)),
		SuccessRate:    make(map[string]float64, len(m.success)),
		UsageByHour:    make(map[int]int, len(m.usageByHour)),
		LastFeedback:   make(map[string]FeedbackRecord, len(m.lastFeedback)),
		Interruptions:  m.interruptions,
		MeanSuccess:    m.meanLocked(),
		PreferredStyle: styleFor(m.formality),
	}
	for k, v := range m.preferred {
		s.Preferred[k] = v
		s.TotalGestures += v
	}
	for k, v := range m.success {
		s.SuccessRate[k] = v
	}
	for k, v := range m.usageByHour {
		s.UsageByHour[k] = v
	}
	for k, v := range m.lastFeedback {
		s.LastFeedback[k] = v
	}
	return s
}

// Restore replaces the model state with a previously saved snapshot.
func (m *Model) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responseSpeed = clamp(s.ResponseSpeed, MinResponseSpeed, MaxResponseSpeed)
	m.verbosity = clamp(s.Verbosity, 0, 1)
	m.formality = clamp(s.Formality, 0, 1)
	m.interruptions = s.Interruptions

	m.preferred = make(map[string]int, len(s.Preferred))
	for k, v := range s.Preferred {
		m.preferred[k] = v
	}
	m.success = make(map[string]float64, len(s.SuccessRate))
	for k, v := range s.SuccessRate {
		m.success[k] = v
	}
	m.usageByHour = make(map[int]int, len(s.UsageByHour))
	for k, v := range s.UsageByHour {
		m.usageByHour[k] = v
	}
	m.lastFeedback = make(map[string]FeedbackRecord, len(s.LastFeedback))
	for k, v := range s.LastFeedback {
		m.lastFeedback[k] = v
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
