package combo

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestObserve_FiresInOrder(t *testing.T) {
	d := NewDefaultDetector()

	if _, ok := d.Observe(gesture.PeaceSign, at(0)); ok {
		t.Fatal("fired after one gesture")
	}
	if _, ok := d.Observe(gesture.Rock, at(500)); ok {
		t.Fatal("fired after two gestures")
	}
	f, ok := d.Observe(gesture.Open, at(1000))
	if !ok {
		t.Fatal("Expected party combo to fire")
	}
	if f.Combo.Action != ActionParty {
		t.Errorf("Expected action %q, got %q", ActionParty, f.Combo.Action)
	}
	if f.ID == "" {
		t.Error("Expected firing ID")
	}
	if len(d.Pending()) != 0 {
		t.Errorf("Buffer should be cleared after firing, got %v", d.Pending())
	}
	if !d.LastFired().Equal(at(1000)) {
		t.Errorf("LastFired = %v, want %v", d.LastFired(), at(1000))
	}
}

func TestObserve_FiresExactlyOnce(t *testing.T) {
	d := NewDefaultDetector()

	fires := 0
	seq := []string{gesture.Pointer, gesture.OK, gesture.Pointer, gesture.OK, gesture.Pointer}
	for i, g := range seq {
		if _, ok := d.Observe(g, at(i*200)); ok {
			fires++
		}
	}
	if fires != 1 {
		t.Errorf("Expected exactly 1 firing, got %d", fires)
	}
}

func TestObserve_NoMatch(t *testing.T) {
	tests := []struct {
		name  string
		steps []struct {
			g  string
			ms int
		}
	}{
		{
			name: "wrong order",
			steps: []struct {
				g  string
				ms int
			}{{gesture.Rock, 0}, {gesture.PeaceSign, 100}, {gesture.Open, 200}},
		},
		{
			name: "gesture replaced",
			steps: []struct {
				g  string
				ms int
			}{{gesture.PeaceSign, 0}, {gesture.Closed, 100}, {gesture.Open, 200}},
		},
		{
			name: "timed out",
			steps: []struct {
				g  string
				ms int
			}{{gesture.PeaceSign, 0}, {gesture.Rock, 1000}, {gesture.Open, 3500}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDefaultDetector()
			for _, s := range tc.steps {
				if _, ok := d.Observe(s.g, at(s.ms)); ok {
					t.Fatalf("unexpected firing at %q", s.g)
				}
			}
		})
	}
}

func TestObserve_NeutralIgnored(t *testing.T) {
	d := NewDefaultDetector()

	d.Observe(gesture.PeaceSign, at(0))
	d.Observe(gesture.Neutral, at(100))
	d.Observe(gesture.Rock, at(200))
	if _, ok := d.Observe(gesture.Open, at(300)); !ok {
		t.Error("Neutral must not break a combo")
	}
}

func TestObserve_PruneKeepsWindow(t *testing.T) {
	d := NewDetector(DefaultTimeout)
	d.Observe(gesture.Open, at(0))
	d.Observe(gesture.Closed, at(2000))
	d.Observe(gesture.OK, at(4000))

	pending := d.Pending()
	if len(pending) != 2 || pending[0] != gesture.Closed {
		t.Errorf("Expected [Closed OK] after pruning, got %v", pending)
	}
}

func TestSetTimeout_Quick(t *testing.T) {
	d := NewDefaultDetector()
	d.SetTimeout(QuickTimeout)

	d.Observe(gesture.PeaceSign, at(0))
	d.Observe(gesture.Rock, at(1000))
	if _, ok := d.Observe(gesture.Open, at(2000)); ok {
		t.Error("Combo spanning 2s must not fire with a 1.5s window")
	}

	d.Reset()
	d.Observe(gesture.PeaceSign, at(5000))
	d.Observe(gesture.Rock, at(5500))
	if _, ok := d.Observe(gesture.Open, at(6000)); !ok {
		t.Error("Combo within 1s should fire with a 1.5s window")
	}
}

func TestRegister_Validation(t *testing.T) {
	d := NewDetector(0)
	if d.Timeout() != DefaultTimeout {
		t.Errorf("Expected default timeout, got %v", d.Timeout())
	}

	err := d.Register(Combo{Sequence: Sequence{gesture.Open, gesture.Neutral, gesture.Closed}, Action: "x"})
	if !errors.Is(err, ErrInvalidCombo) {
		t.Errorf("Expected ErrInvalidCombo, got %v", err)
	}

	err = d.Register(Combo{Sequence: Sequence{gesture.Open, gesture.OK, gesture.Closed}})
	if !errors.Is(err, ErrInvalidCombo) {
		t.Errorf("Expected ErrInvalidCombo for missing action, got %v", err)
	}

	c := Combo{Sequence: Sequence{gesture.Open, gesture.OK, gesture.Closed}, Action: "wave"}
	if err := d.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Register(c); !errors.Is(err, ErrDuplicateCombo) {
		t.Errorf("Expected ErrDuplicateCombo, got %v", err)
	}
	if len(d.Combos()) != 1 {
		t.Errorf("Expected 1 combo, got %d", len(d.Combos()))
	}
}
