package interaction

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

func TestParseContext(t *testing.T) {
	for _, c := range All {
		got, err := ParseContext(string(c))
		if err != nil || got != c {
			t.Errorf("ParseContext(%q) = %q, %v", c, got, err)
		}
	}
	if got, _ := ParseContext(" Gaming "); got != Gaming {
		t.Errorf("Expected case-insensitive parse, got %q", got)
	}
	if _, err := ParseContext("celebration"); !errors.Is(err, ErrUnknownContext) {
		t.Errorf("Expected ErrUnknownContext, got %v", err)
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		ctx    Context
		frames int
		speed  float64
	}{
		{Gaming, 2, 0.8},
		{Work, 3, 1.0},
		{Presentation, 4, 0},
		{Casual, 0, 0},
		{Accessibility, 0, 0},
	}
	for _, tc := range tests {
		p := Presets(tc.ctx)
		if p.MinStableFrames != tc.frames || p.ResponseSpeed != tc.speed {
			t.Errorf("%s: unexpected preset %+v", tc.ctx, p)
		}
	}
	if Presets(Work).Formality != 0.8 {
		t.Error("Work preset should raise formality")
	}
	if Presets(Accessibility) != (Preset{}) {
		t.Error("Accessibility preset should leave parameters unchanged")
	}
}

func TestDetectFromClock(t *testing.T) {
	// 2026-03-02 is a Monday, 2026-03-07 a Saturday.
	tests := []struct {
		name string
		at   time.Time
		want Context
		ok   bool
	}{
		{"weekday morning", time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local), Work, true},
		{"weekday evening", time.Date(2026, 3, 2, 21, 0, 0, 0, time.Local), Casual, true},
		{"early hours", time.Date(2026, 3, 2, 3, 0, 0, 0, time.Local), Casual, true},
		{"weekend midday", time.Date(2026, 3, 7, 12, 0, 0, 0, time.Local), "", false},
		{"weekday late afternoon", time.Date(2026, 3, 2, 18, 0, 0, 0, time.Local), "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DetectFromClock(tc.at)
			if got != tc.want || ok != tc.ok {
				t.Errorf("DetectFromClock = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestRecognize(t *testing.T) {
	still := func(g string) MotionPoint { return MotionPoint{Gesture: g, Stability: 0.9} }

	presentation := []MotionPoint{still(gesture.Open), still(gesture.Open), still(gesture.Pointer), still(gesture.Open)}
	if got := Recognize(presentation, Casual); got != Presentation {
		t.Errorf("Expected presentation, got %s", got)
	}

	rapid := []MotionPoint{
		{Gesture: gesture.Open}, {Gesture: gesture.Closed}, {Gesture: gesture.Open},
		{Gesture: gesture.OK}, {Gesture: gesture.Rock}, {Gesture: gesture.Open},
	}
	if got := Recognize(rapid, Work); got != Gaming {
		t.Errorf("Expected gaming, got %s", got)
	}

	calm := []MotionPoint{{Gesture: gesture.Open}, {Gesture: gesture.Open}, {Gesture: gesture.Open}, {Gesture: gesture.Open}, {Gesture: gesture.Open}}
	if got := Recognize(calm, Work); got != Work {
		t.Errorf("Expected current context kept, got %s", got)
	}

	if got := Recognize(nil, Accessibility); got != Accessibility {
		t.Errorf("Expected current context for empty input, got %s", got)
	}
}
