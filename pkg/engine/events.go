package engine

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a telemetry event.
type EventType string

const (
	EventGesture        EventType = "gesture"
	EventDecision       EventType = "decision"
	EventAnnouncement   EventType = "announcement"
	EventCombo          EventType = "combo"
	EventModeChange     EventType = "mode_change"
	EventContextChange  EventType = "context_change"
	EventCommand        EventType = "command"
	EventFeedback       EventType = "feedback"
	EventGestureAdded   EventType = "gesture_registered"
	EventButtonUpdate   EventType = "button_update"
	EventDevice         EventType = "device"
	EventSlide          EventType = "slide"
	EventInterruption   EventType = "interruption"
	EventDiagnostic     EventType = "diagnostic"
	EventSystemStatus   EventType = "system_status"
	EventAmbientChanged EventType = "ambient"
)

// Event is published to telemetry subscribers.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

func newEvent(t EventType, at time.Time, data any) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: at, Data: data}
}

// Publisher receives events after the engine lock is released.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f.
func (f PublisherFunc) Publish(e Event) {
	f(e)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
