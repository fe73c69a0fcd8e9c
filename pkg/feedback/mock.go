package feedback

import (
	"context"
	"sync"
)

// Recorder implements every sink and records the calls it receives.
// It is meant for tests.
type Recorder struct {
	// Err, if set, is returned from every call after recording it.
	Err error

	mu    sync.Mutex
	calls []RecordedCall
}

// RecordedCall is one sink invocation.
type RecordedCall struct {
	Method string
	Arg    string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(method, arg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, RecordedCall{Method: method, Arg: arg})
	return r.Err
}

// Speak records the utterance.
func (r *Recorder) Speak(_ context.Context, text string) error {
	return r.record("Speak", text)
}

// PlaySound records the sound id.
func (r *Recorder) PlaySound(_ context.Context, id string) error {
	return r.record("PlaySound", id)
}

// Trigger records the haptic pattern name.
func (r *Recorder) Trigger(_ context.Context, p HapticPattern) error {
	return r.record("Trigger", p.Name)
}

// SetColor records the colour.
func (r *Recorder) SetColor(_ context.Context, c Color) error {
	return r.record("SetColor", c.String())
}

// SetPattern records the pattern name.
func (r *Recorder) SetPattern(_ context.Context, name string) error {
	return r.record("SetPattern", name)
}

// Slide records the slide action.
func (r *Recorder) Slide(_ context.Context, action SlideAction) error {
	return r.record("Slide", string(action))
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// Said returns every spoken utterance in order.
func (r *Recorder) Said() []string {
	return r.args("Speak")
}

// Count returns how many times method was called.
func (r *Recorder) Count(method string) int {
	return len(r.args(method))
}

func (r *Recorder) args(method string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Reset clears recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
