// Package combo detects fixed three-gesture sequences performed within a
// short time window.
package combo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Length is the number of gestures in every combo.
const Length = 3

// Default and quick windows for completing a combo.
const (
	DefaultTimeout = 3 * time.Second
	QuickTimeout   = 1500 * time.Millisecond
)

// Actions understood by the engine.
const (
	ActionParty     = "party"
	ActionPrecision = "precision"
)

var (
	// ErrInvalidCombo is returned when a combo fails validation.
	ErrInvalidCombo = errors.New("combo: invalid combo")

	// ErrDuplicateCombo is returned when the sequence is already registered.
	ErrDuplicateCombo = errors.New("combo: sequence already registered")
)

// Sequence is an exact ordered gesture tuple.
type Sequence [Length]string

// Combo binds a sequence to an action and a spoken response.
type Combo struct {
	Sequence Sequence `json:"sequence"`
	Action   string   `json:"action"`
	Response string   `json:"response"`
}

// Validate checks that the combo can be matched.
func (c Combo) Validate() error {
	for i, g := range c.Sequence {
		if g == "" || g == gesture.Neutral {
			return fmt.Errorf("%w: position %d must be a non-neutral gesture", ErrInvalidCombo, i)
		}
	}
	if c.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidCombo)
	}
	return nil
}

// Firing records a matched combo.
type Firing struct {
	ID    string    `json:"id"`
	Combo Combo     `json:"combo"`
	At    time.Time `json:"at"`
}

// DefaultCombos returns the built-in party and precision combos.
func DefaultCombos() []Combo {
	return []Combo{
		{
			Sequence: Sequence{gesture.PeaceSign, gesture.Rock, gesture.Open},
			Action:   ActionParty,
			Response: "Party sequence activated! Let's get this party started!",
		},
		{
			Sequence: Sequence{gesture.Pointer, gesture.OK, gesture.Pointer},
			Action:   ActionPrecision,
			Response: "Precision control mode activated. Sensitivity increased.",
		},
	}
}

type entry struct {
	gesture string
	at      time.Time
}

// Detector buffers recent non-neutral gestures and matches the last three
// against registered combos.
type Detector struct {
	mu       sync.Mutex
	timeout  time.Duration
	combos   map[Sequence]Combo
	buffer   []entry
	lastFire time.Time
}

// NewDetector creates a detector with the given timeout (DefaultTimeout if
// zero) and no combos.
func NewDetector(timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detector{
		timeout: timeout,
		combos:  make(map[Sequence]Combo),
	}
}

// NewDefaultDetector creates a detector with DefaultCombos registered.
func NewDefaultDetector() *Detector {
	d := NewDetector(DefaultTimeout)
	for _, c := range DefaultCombos() {
		_ = d.Register(c)
	}
	return d
}

// Register adds a combo.
func (d *Detector) Register(c Combo) error {
	if err := c.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.combos[c.Sequence]; exists {
		return fmt.Errorf("%w: %v", ErrDuplicateCombo, c.Sequence)
	}
	d.combos[c.Sequence] = c
	return nil
}

// Combos returns the registered combos.
func (d *Detector) Combos() []Combo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Combo, 0, len(d.combos))
	for _, c := range d.combos {
		out = append(out, c)
	}
	return out
}

// Observe appends a stabilized gesture seen at now. Neutral gestures are
// ignored. When the last three buffered gestures match a combo the buffer is
// cleared and the firing returned.
func (d *Detector) Observe(label string, now time.Time) (Firing, bool) {
	if label == "" || label == gesture.Neutral {
		return Firing{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.buffer = append(d.buffer, entry{gesture: label, at: now})
	d.pruneLocked(now)

	if len(d.buffer) < Length {
		return Firing{}, false
	}

	var key Sequence
	tail := d.buffer[len(d.buffer)-Length:]
	for i, e := range tail {
		key[i] = e.gesture
	}

	c, ok := d.combos[key]
	if !ok {
		return Firing{}, false
	}

	d.buffer = d.buffer[:0]
	d.lastFire = now
	return Firing{ID: uuid.NewString(), Combo: c, At: now}, true
}

func (d *Detector) pruneLocked(now time.Time) {
	keep := 0
	for _, e := range d.buffer {
		if now.Sub(e.at) <= d.timeout {
			d.buffer[keep] = e
			keep++
		}
	}
	d.buffer = d.buffer[:keep]
}

// SetTimeout changes the combo window.
func (d *Detector) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	d.mu.Lock()
	d.timeout = timeout
	d.mu.Unlock()
}

// Timeout returns the combo window.
func (d *Detector) Timeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeout
}

// LastFired returns when a combo last fired (zero if never).
func (d *Detector) LastFired() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFire
}

// Pending returns the buffered gestures, oldest first.
func (d *Detector) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.buffer))
	for i, e := range d.buffer {
		out[i] = e.gesture
	}
	return out
}

// Reset clears the buffer.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.buffer = d.buffer[:0]
	d.mu.Unlock()
}
