package announce

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Style selects a bucket of response variants.
type Style string

const (
	Casual       Style = "casual"
	Professional Style = "professional"
	Playful      Style = "playful"
)

// Styles lists every response style.
var Styles = []Style{Casual, Professional, Playful}

func validStyle(s Style) bool {
	for _, v := range Styles {
		if v == s {
			return true
		}
	}
	return false
}

var (
	// ErrInvalidResponse is returned when a response fails validation.
	ErrInvalidResponse = errors.New("announce: invalid response")

	// ErrNotFound is returned when a gesture has no registered response.
	ErrNotFound = errors.New("announce: gesture not found")
)

// Response is everything emitted when a gesture is announced.
type Response struct {
	Styled map[Style][]string `json:"styles" yaml:"styles"`
	Sound  string             `json:"sound,omitempty" yaml:"sound,omitempty"`
	Haptic string             `json:"haptic,omitempty" yaml:"haptic,omitempty"`
	Light  *feedback.Color    `json:"light,omitempty" yaml:"light,omitempty"`
}

// Validate checks styles, variants and the haptic pattern.
func (r Response) Validate() error {
	for style, variants := range r.Styled {
		if !validStyle(style) {
			return fmt.Errorf("%w: unknown style %q", ErrInvalidResponse, style)
		}
		for i, v := range variants {
			if v == "" {
				return fmt.Errorf("%w: %s variant %d is empty", ErrInvalidResponse, style, i)
			}
		}
	}
	if r.Haptic != "" {
		if _, ok := feedback.LookupHaptic(r.Haptic); !ok {
			return fmt.Errorf("%w: unknown haptic pattern %q", ErrInvalidResponse, r.Haptic)
		}
	}
	return nil
}

// Cue returns the multimodal part of the response.
func (r Response) Cue() feedback.Cue {
	return feedback.Cue{Sound: r.Sound, Haptic: r.Haptic, Light: r.Light}
}

// clone deep-copies the response so callers cannot mutate library state.
func (r Response) clone() Response {
	out := r
	out.Styled = make(map[Style][]string, len(r.Styled))
	for s, v := range r.Styled {
		out.Styled[s] = append([]string(nil), v...)
	}
	if r.Light != nil {
		c := *r.Light
		out.Light = &c
	}
	return out
}

func color(r, g, b uint8) *feedback.Color {
	c := feedback.RGB(r, g, b)
	return &c
}

// DefaultCustomResponse is used when a gesture is registered without its
// own responses.
func DefaultCustomResponse(name string) Response {
	return Response{
		Styled: map[Style][]string{
			Casual:       {fmt.Sprintf("%s gesture detected.", name)},
			Professional: {fmt.Sprintf("Gesture recognized: %s.", name)},
			Playful:      {fmt.Sprintf("Wow! That's a %s! Cool move!", name)},
		},
		Sound:  "new_gesture.wav",
		Haptic: feedback.HapticLightPulse,
		Light:  color(180, 180, 220),
	}
}

func builtin() map[string]Response {
	return map[string]Response{
		gesture.Open: {
			Styled: map[Style][]string{
				Casual: {
					"Hand open, ready for action!",
					"Palm detected. What's next?",
					"Open hand registered.",
				},
				Professional: {
					"Open palm gesture recognized.",
					"Hand gesture: Open. Awaiting further input.",
					"Open hand posture detected. System ready.",
				},
				Playful: {
					"High five mode activated! Don't leave me hanging!",
					"Open sesame! Your magical hand has been detected!",
					"Jazz hands detected! Ready to dazzle!",
				},
			},
			Sound:  "soft_chime.wav",
			Haptic: feedback.HapticLightPulse,
			Light:  color(200, 200, 255),
		},
		gesture.Closed: {
			Styled: map[Style][]string{
				Casual: {
					"Fist bump! Power move detected.",
					"Clenched fist recognized.",
					"Fist formed. Ready to rock?",
				},
				Professional: {
					"Closed hand gesture registered.",
					"Hand posture: Closed fist. Acknowledged.",
					"Gesture analysis: Closed hand configuration.",
				},
				Playful: {
					"Hulk SMASH gesture detected! Impressive strength!",
					"Fist of fury! Unleash your inner action hero!",
					"Power fist activated! Superhero mode engaged!",
				},
			},
			Sound:  "power_up.wav",
			Haptic: feedback.HapticStrongBump,
			Light:  color(255, 120, 120),
		},
		gesture.Pointer: {
			Styled: map[Style][]string{
				Casual: {
					"Pointing detected. What caught your eye?",
					"Index finger extended. Targeting something?",
					"Pointing gesture recognized.",
				},
				Professional: {
					"Directional gesture registered: Index extended.",
					"Pointing posture detected. Tracking vector.",
					"Hand configuration: Pointer. Calculating trajectory.",
				},
				Playful: {
					"ET phone home! Magical finger of destiny detected!",
					"Pew pew! Finger laser activated! Target locked!",
					"You're the chosen one! Your pointing finger has spoken!",
				},
			},
			Sound:  "laser_select.wav",
			Haptic: feedback.HapticDirectional,
			Light:  color(255, 255, 150),
		},
		gesture.OK: {
			Styled: map[Style][]string{
				Casual: {
					"OK sign spotted. All good?",
					"Circle of confirmation seen.",
					"OK gesture registered. Proceeding.",
				},
				Professional: {
					"Affirmative gesture detected: OK formation.",
					"Hand configuration: OK. Confirmation registered.",
					"Positive feedback gesture acknowledged.",
				},
				Playful: {
					"Perfect circle achieved! Geometry wizardry confirmed!",
					"OK-dokey! Your finger magic is working perfectly!",
					"Circle of excellence formed! Achievement unlocked!",
				},
			},
			Sound:  "positive_beep.wav",
			Haptic: feedback.HapticConfirmation,
			Light:  color(100, 255, 100),
		},
		gesture.PeaceSign: {
			Styled: map[Style][]string{
				Casual: {
					"Peace sign detected!",
					"Victory gesture recognized!",
					"Peace out! Gesture registered.",
				},
				Professional: {
					"Peace sign gesture detected.",
					"Hand configuration: Peace sign. Acknowledged.",
					"Two-finger victory gesture recognized.",
				},
				Playful: {
					"Peace and love! Groovy gesture detected!",
					"Victory dance time! Peace sign spotted!",
					"Peace out, friend! Those fingers are speaking volumes!",
				},
			},
			Sound:  "peace_chime.wav",
			Haptic: feedback.HapticDoublePulse,
			Light:  color(150, 255, 150),
		},
		gesture.Neutral: {
			Styled: map[Style][]string{Casual: {}, Professional: {}, Playful: {}},
			Sound:  "transition_woosh.wav",
		},
	}
}

// Library maps gesture names to responses. It is safe for concurrent use.
type Library struct {
	mu        sync.RWMutex
	responses map[string]Response
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{responses: make(map[string]Response)}
}

// DefaultLibrary creates a library holding the built-in responses.
func DefaultLibrary() *Library {
	return &Library{responses: builtin()}
}

// Register adds or replaces the response for name. A zero response gets
// DefaultCustomResponse. updated reports whether name already existed.
func (l *Library) Register(name string, r *Response) (updated bool, err error) {
	if name == "" || name == gesture.Neutral {
		return false, fmt.Errorf("%w: gesture name %q cannot be registered", ErrInvalidResponse, name)
	}
	resp := DefaultCustomResponse(name)
	if r != nil && len(r.Styled) > 0 {
		resp = r.clone()
	}
	if err := resp.Validate(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, updated = l.responses[name]
	l.responses[name] = resp
	return updated, nil
}

// Get returns the response for name.
func (l *Library) Get(name string) (Response, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.responses[name]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.clone(), nil
}

// Names returns the registered gesture names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.responses))
	for n := range l.responses {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadYAML registers every entry of a YAML document mapping gesture names
// to responses. It returns the number of entries loaded.
func (l *Library) LoadYAML(r io.Reader) (int, error) {
	var doc map[string]Response
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("decode responses: %w", err)
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := doc[name].Validate(); err != nil {
			return 0, fmt.Errorf("response %q: %w", name, err)
		}
	}
	for _, name := range names {
		resp := doc[name]
		if _, err := l.Register(name, &resp); err != nil {
			return 0, fmt.Errorf("register %q: %w", name, err)
		}
	}
	return len(names), nil
}

// LoadFile loads a YAML response file.
func (l *Library) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open responses: %w", err)
	}
	defer f.Close()
	return l.LoadYAML(f)
}
