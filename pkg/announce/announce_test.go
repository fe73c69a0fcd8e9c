package announce

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/stabilizer"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

type countingWindow struct{ resets int }

func (w *countingWindow) Reset() { w.resets++ }

func newController() (*Controller, *usermodel.Model, *countingWindow) {
	model := usermodel.New(usermodel.DefaultConfig())
	win := &countingWindow{}
	c := NewController(DefaultConfig(), DefaultLibrary(), model, win, nil)
	return c, model, win
}

func dec(g string, conf float64) gesture.Decision {
	return gesture.Decision{Gesture: g, Confidence: conf}
}

func TestDecide_Gates(t *testing.T) {
	tests := []struct {
		name string
		d    gesture.Decision
		fire bool
	}{
		{"neutral", dec(gesture.Neutral, 0.99), false},
		{"at confidence gate", dec(gesture.Open, 0.65), false},
		{"above gate", dec(gesture.Open, 0.66), true},
		{"unknown gesture", dec("Wave", 0.9), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _, _ := newController()
			_, fired := c.Decide(tc.d, t0)
			if fired != tc.fire {
				t.Errorf("fired=%v, want %v", fired, tc.fire)
			}
		})
	}
}

func TestDecide_FirstAnnouncement(t *testing.T) {
	c, model, win := newController()

	a, ok := c.Decide(dec(gesture.Open, 0.9), t0)
	if !ok {
		t.Fatal("Expected first announcement")
	}
	if a.Reason != ReasonFirst {
		t.Errorf("Expected reason %s, got %s", ReasonFirst, a.Reason)
	}
	if a.Text != "Hand open, ready for action!" {
		t.Errorf("Unexpected text %q", a.Text)
	}
	if a.Cue.Sound != "soft_chime.wav" || a.Cue.Haptic != feedback.HapticLightPulse {
		t.Errorf("Unexpected cue %+v", a.Cue)
	}
	if win.resets != 1 {
		t.Errorf("Expected window reset once, got %d", win.resets)
	}
	if c.Interactions() != 1 || a.Interaction != 1 {
		t.Errorf("Expected 1 interaction, got %d", c.Interactions())
	}
	if v, ok := model.SuccessRate(gesture.Open); !ok || v < 0.19 || v > 0.21 {
		t.Errorf("Expected EMA success 0.2, got %v", v)
	}
}

func TestDecide_CooldownRules(t *testing.T) {
	c, _, _ := newController()
	c.Decide(dec(gesture.Open, 0.9), at(0))

	steps := []struct {
		name   string
		d      gesture.Decision
		ms     int
		fire   bool
		reason Reason
	}{
		{"same gesture inside cooldown", dec(gesture.Open, 0.9), 500, false, ""},
		{"different gesture inside cooldown", dec(gesture.Closed, 0.9), 900, false, ""},
		{"different gesture after cooldown", dec(gesture.Closed, 0.9), 1000, true, ReasonChanged},
		{"same gesture after one cooldown", dec(gesture.Closed, 0.9), 2500, false, ""},
		{"same gesture after extended cooldown", dec(gesture.Closed, 0.9), 4000, true, ReasonExtended},
	}
	for _, s := range steps {
		a, fired := c.Decide(s.d, at(s.ms))
		if fired != s.fire {
			t.Fatalf("%s: fired=%v, want %v", s.name, fired, s.fire)
		}
		if fired && a.Reason != s.reason {
			t.Errorf("%s: reason %s, want %s", s.name, a.Reason, s.reason)
		}
	}
}

func TestDecide_AtMostOncePerCooldown(t *testing.T) {
	c, _, _ := newController()

	fires := 0
	for ms := 0; ms < 2900; ms += 50 {
		if _, ok := c.Decide(dec(gesture.OK, 0.95), at(ms)); ok {
			fires++
		}
	}
	if fires != 1 {
		t.Errorf("Expected a single announcement for a held gesture, got %d", fires)
	}
}

func TestDecide_CriticalOverride(t *testing.T) {
	c, _, _ := newController()
	if _, err := c.library.Register(gesture.Stop, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c.Decide(dec(gesture.Stop, 0.95), at(0))

	if _, ok := c.Decide(dec(gesture.Stop, 0.9), at(100)); ok {
		t.Error("Override requires confidence strictly above 0.9")
	}
	a, ok := c.Decide(dec(gesture.Stop, 0.95), at(100))
	if !ok || a.Reason != ReasonOverride {
		t.Errorf("Expected override firing, got ok=%v reason=%s", ok, a.Reason)
	}
}

func TestDecide_ResponseSpeedScalesCooldown(t *testing.T) {
	c, model, _ := newController()
	model.SetResponseSpeed(0.5)

	c.Decide(dec(gesture.Open, 0.9), at(0))
	if _, ok := c.Decide(dec(gesture.Closed, 0.9), at(500)); !ok {
		t.Error("Expected firing after a halved cooldown")
	}
	if c.EffectiveCooldown() != 500*time.Millisecond {
		t.Errorf("Unexpected effective cooldown %v", c.EffectiveCooldown())
	}
}

func TestDecide_VariantRotationAndStyle(t *testing.T) {
	c, model, _ := newController()
	model.SetFormality(0.9)

	var texts []string
	for i := 0; i < 4; i++ {
		a, ok := c.Decide(dec(gesture.Closed, 0.9), at(i*3000))
		if !ok {
			t.Fatalf("announcement %d did not fire", i)
		}
		if a.Style != Professional {
			t.Errorf("Expected professional style, got %s", a.Style)
		}
		texts = append(texts, a.Text)
	}
	want := []string{
		"Closed hand gesture registered.",
		"Hand posture: Closed fist. Acknowledged.",
		"Gesture analysis: Closed hand configuration.",
		"Closed hand gesture registered.",
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("variant %d: got %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestDecide_ConfidenceAnnotation(t *testing.T) {
	c, model, _ := newController()
	model.SetVerbosity(0.9)

	a, _ := c.Decide(dec(gesture.OK, 0.876), t0)
	if !strings.HasSuffix(a.Text, " Confidence: 87.6%") {
		t.Errorf("Expected confidence suffix, got %q", a.Text)
	}

	c2, _, _ := newController()
	c2.SetAnnotate(true)
	a, _ = c2.Decide(dec(gesture.OK, 0.9), t0)
	if !strings.HasSuffix(a.Text, " Confidence: 90.0%") {
		t.Errorf("Expected accessibility annotation, got %q", a.Text)
	}
}

func TestDecide_PauseResume(t *testing.T) {
	c, _, _ := newController()
	c.Pause()
	if _, ok := c.Decide(dec(gesture.Open, 0.9), t0); ok {
		t.Error("Paused controller must not announce")
	}
	c.Resume()
	if _, ok := c.Decide(dec(gesture.Open, 0.9), t0); !ok {
		t.Error("Resumed controller should announce")
	}
}

func TestDecide_ResetAllowsImmediateRepeat(t *testing.T) {
	c, _, _ := newController()
	c.Decide(dec(gesture.Open, 0.9), at(0))
	c.Reset()
	a, ok := c.Decide(dec(gesture.Open, 0.9), at(10))
	if !ok || a.Reason != ReasonFirst {
		t.Errorf("Expected first-announcement after reset, got ok=%v reason=%s", ok, a.Reason)
	}
}

func TestDecide_TouchSharesCooldown(t *testing.T) {
	c, _, _ := newController()
	c.Touch(gesture.Next, at(0))
	if _, ok := c.Decide(dec(gesture.Open, 0.9), at(200)); ok {
		t.Error("Touched gesture should start the cooldown")
	}
}

func TestDecide_UsageAndRecalibration(t *testing.T) {
	model := usermodel.New(usermodel.DefaultConfig())
	filter := stabilizer.New(stabilizer.DefaultConfig())
	cfg := DefaultConfig()
	cfg.RecalibrateEvery = 20
	c := NewController(cfg, DefaultLibrary(), model, filter, filter)

	model.RecordGesture(gesture.Open)
	var last Announcement
	for i := 0; i < 20; i++ {
		a, ok := c.Decide(dec(gesture.Open, 0.9), at(i*3000))
		if !ok {
			t.Fatalf("announcement %d did not fire", i)
		}
		last = a
	}
	if got := model.Snapshot().UsageByHour[t0.Hour()]; got != 2 {
		t.Errorf("Expected 2 usage passes, got %d", got)
	}
	// 20 consecutive successes push the EMA above 0.85.
	if last.Recalibration == "" {
		t.Error("Expected a recalibration message on the 20th interaction")
	}
	if filter.MinStableFrames() != 2 {
		t.Errorf("Expected recalibration to relax frames to 2, got %d", filter.MinStableFrames())
	}
}

func TestLibrary_Register(t *testing.T) {
	lib := DefaultLibrary()

	updated, err := lib.Register("Wave", nil)
	if err != nil || updated {
		t.Fatalf("Register new: updated=%v err=%v", updated, err)
	}
	r, err := lib.Get("Wave")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Styled[Casual][0] != "Wave gesture detected." || r.Sound != "new_gesture.wav" {
		t.Errorf("Unexpected default response %+v", r)
	}
	if r.Light == nil || *r.Light != feedback.RGB(180, 180, 220) {
		t.Errorf("Unexpected default light %+v", r.Light)
	}

	custom := &Response{Styled: map[Style][]string{Casual: {"Bye!"}}}
	updated, err = lib.Register("Wave", custom)
	if err != nil || !updated {
		t.Fatalf("Register update: updated=%v err=%v", updated, err)
	}
	r, _ = lib.Get("Wave")
	if r.Styled[Casual][0] != "Bye!" {
		t.Errorf("Expected updated response, got %+v", r.Styled)
	}

	custom.Styled[Casual][0] = "mutated"
	r, _ = lib.Get("Wave")
	if r.Styled[Casual][0] != "Bye!" {
		t.Error("Library must copy registered responses")
	}
}

func TestLibrary_Validation(t *testing.T) {
	lib := NewLibrary()
	tests := []struct {
		name string
		gest string
		resp *Response
	}{
		{"empty name", "", nil},
		{"neutral", gesture.Neutral, nil},
		{"unknown style", "Wave", &Response{Styled: map[Style][]string{"sarcastic": {"sure"}}}},
		{"empty variant", "Wave", &Response{Styled: map[Style][]string{Casual: {""}}}},
		{"unknown haptic", "Wave", &Response{Styled: map[Style][]string{Casual: {"hi"}}, Haptic: "buzz"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := lib.Register(tc.gest, tc.resp); !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("Expected ErrInvalidResponse, got %v", err)
			}
		})
	}
	if _, err := lib.Get("Wave"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLibrary_LoadYAML(t *testing.T) {
	doc := `
Thumbs up:
  styles:
    casual: ["Nice one!", "Thumbs up!"]
    professional: ["Approval gesture recognized."]
  sound: thumbs.wav
  haptic: strong_bump
  light: {r: 10, g: 20, b: 30}
Wave:
  styles:
    playful: ["Hello there!"]
`
	lib := DefaultLibrary()
	n, err := lib.LoadYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
	r, err := lib.Get("Thumbs up")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(r.Styled[Casual]) != 2 || r.Haptic != feedback.HapticStrongBump {
		t.Errorf("Unexpected response %+v", r)
	}
	if r.Light == nil || r.Light.B != 30 {
		t.Errorf("Unexpected light %+v", r.Light)
	}
}

func TestLibrary_LoadYAMLInvalidIsAtomic(t *testing.T) {
	doc := `
Alpha:
  styles:
    casual: ["ok"]
Beta:
  styles:
    casual: ["ok"]
  haptic: buzz
`
	lib := NewLibrary()
	if _, err := lib.LoadYAML(strings.NewReader(doc)); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Expected ErrInvalidResponse, got %v", err)
	}
	if len(lib.Names()) != 0 {
		t.Errorf("Nothing should be registered from an invalid file, got %v", lib.Names())
	}
}

func TestDefaultLibraryNames(t *testing.T) {
	names := DefaultLibrary().Names()
	want := []string{gesture.Closed, gesture.Neutral, gesture.OK, gesture.Open, gesture.PeaceSign, gesture.Pointer}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
