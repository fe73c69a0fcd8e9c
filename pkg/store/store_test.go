package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "nested", "gesture.db"))
	s.logger = log.Discard()
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInit_RunsMigrations(t *testing.T) {
	s := openTemp(t)
	if !s.Enabled() {
		t.Fatal("Store should be enabled")
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("Expected schema version %d, got %d", len(migrations), v)
	}
}

func TestInit_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gesture.db")
	ctx := context.Background()

	first := New(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	first.RecordFeedback(ctx, FeedbackEntry{Kind: "speed", Rating: 0.2})
	first.Close()

	second := New(path)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer second.Close()
	entries, err := second.RecentFeedback(ctx, 10)
	if err != nil || len(entries) != 1 {
		t.Errorf("Expected 1 entry after reopen, got %v (err=%v)", entries, err)
	}
}

func TestDisabledStoreIsNoop(t *testing.T) {
	s := New("")
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init on disabled store: %v", err)
	}
	if s.Enabled() {
		t.Error("Empty path should disable the store")
	}
	if err := s.SavePreferences(ctx, Preferences{Context: "work"}); err != nil {
		t.Errorf("SavePreferences: %v", err)
	}
	if _, ok, err := s.LoadPreferences(ctx); ok || err != nil {
		t.Errorf("LoadPreferences on disabled store: ok=%v err=%v", ok, err)
	}
}

func TestInit_UnwritableDirectoryDisables(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(context.Background(), filepath.Join(blocker, "sub", "gesture.db"))
	if s.Enabled() {
		t.Error("Store should disable itself when the directory cannot be created")
	}
	if err := s.RecordFeedback(context.Background(), FeedbackEntry{Kind: "speed"}); err != nil {
		t.Errorf("Writes on a disabled store must not fail: %v", err)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	if _, ok, err := s.LoadPreferences(ctx); ok || err != nil {
		t.Fatalf("Expected no preferences yet, ok=%v err=%v", ok, err)
	}

	m := usermodel.New(usermodel.DefaultConfig())
	m.RecordGesture("Open")
	m.SetFormality(0.8)
	saved := Preferences{
		Model:           m.Snapshot(),
		Context:         "work",
		MinStableFrames: 4,
		Interactions:    42,
		SavedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.SavePreferences(ctx, saved); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	saved.Context = "gaming"
	if err := s.SavePreferences(ctx, saved); err != nil {
		t.Fatalf("SavePreferences overwrite: %v", err)
	}

	got, ok, err := s.LoadPreferences(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadPreferences: ok=%v err=%v", ok, err)
	}
	if got.Context != "gaming" || got.MinStableFrames != 4 || got.Interactions != 42 {
		t.Errorf("Unexpected preferences %+v", got)
	}
	if got.Model.Formality != 0.8 || got.Model.Preferred["Open"] != 1 {
		t.Errorf("User model not restored: %+v", got.Model)
	}
	if !got.SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, saved.SavedAt)
	}
}

func TestFeedbackLog(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, kind := range []string{"speed", "accuracy", "speed"} {
		if err := s.RecordFeedback(ctx, FeedbackEntry{Kind: kind, Rating: float64(i) / 10, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("RecordFeedback: %v", err)
		}
	}

	entries, err := s.RecentFeedback(ctx, 2)
	if err != nil {
		t.Fatalf("RecentFeedback: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Rating != 0.2 || entries[1].Kind != "accuracy" {
		t.Errorf("Expected newest first, got %+v", entries)
	}
}

func TestCustomGestures(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	wave := announce.DefaultCustomResponse("Wave")
	if err := s.SaveGesture(ctx, CustomGesture{Name: "Wave", Response: wave}); err != nil {
		t.Fatalf("SaveGesture: %v", err)
	}
	thumbs := announce.Response{Styled: map[announce.Style][]string{announce.Casual: {"Nice!"}}}
	if err := s.SaveGesture(ctx, CustomGesture{Name: "Thumbs up", Response: thumbs}); err != nil {
		t.Fatalf("SaveGesture: %v", err)
	}
	thumbs.Styled[announce.Casual] = []string{"Great!"}
	if err := s.SaveGesture(ctx, CustomGesture{Name: "Thumbs up", Response: thumbs}); err != nil {
		t.Fatalf("SaveGesture update: %v", err)
	}

	got, err := s.LoadGestures(ctx)
	if err != nil {
		t.Fatalf("LoadGestures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 gestures, got %d", len(got))
	}
	if got[0].Name != "Thumbs up" || got[0].Response.Styled[announce.Casual][0] != "Great!" {
		t.Errorf("Unexpected first gesture %+v", got[0])
	}
	if got[1].Response.Light == nil || got[1].Response.Sound != "new_gesture.wav" {
		t.Errorf("Unexpected default response %+v", got[1].Response)
	}
}
