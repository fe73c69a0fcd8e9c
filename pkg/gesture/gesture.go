// Package gesture defines the values exchanged between the pose classifier
// and the interpretation layer.
package gesture

import "time"

// Well-known labels produced by the pose classifier.
const (
	Neutral   = "Neutral"
	Open      = "Open"
	Closed    = "Closed"
	Pointer   = "Pointer"
	OK        = "OK"
	PeaceSign = "Peace sign"
	Rock      = "Rock"
	Victory   = "Victory"

	// Presentation control
	Next     = "Next"
	Previous = "Previous"
	Start    = "Start"

	// Critical gestures may bypass the announcement cooldown.
	Stop      = "Stop"
	Help      = "Help"
	Emergency = "Emergency"
)

// Sample is one classifier output for a single processed frame.
type Sample struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Decision is the stabilized estimate of the current gesture.
type Decision struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
}

// IsNeutral reports whether the decision carries no gesture.
func (d Decision) IsNeutral() bool {
	return d.Gesture == "" || d.Gesture == Neutral
}

// NeutralDecision is returned when no label is stable enough.
var NeutralDecision = Decision{Gesture: Neutral, Confidence: 0}

// CriticalGestures are the labels allowed to override the cooldown.
var CriticalGestures = []string{Stop, Help, Emergency}

// IsCritical reports whether label is one of CriticalGestures.
func IsCritical(label string) bool {
	for _, g := range CriticalGestures {
		if g == label {
			return true
		}
	}
	return false
}

// IsPresentation reports whether label drives slide control.
func IsPresentation(label string) bool {
	return label == Next || label == Previous || label == Start
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
