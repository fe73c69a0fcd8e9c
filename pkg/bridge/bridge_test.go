package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/internal/httpc"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/feedback"
)

type request struct {
	path string
	body map[string]any
}

func newServer(t *testing.T, status func(n int32) int) (*httptest.Server, *[]request, *sync.Mutex) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []request
		hits atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		reqs = append(reqs, request{path: r.URL.Path, body: body})
		mu.Unlock()
		if status != nil {
			w.WriteHeader(status(n))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs, &mu
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("Expected ErrNoBaseURL, got %v", err)
	}
}

func TestBridge_ImplementsSinks(t *testing.T) {
	srv, reqs, mu := newServer(t, nil)
	b, err := New(WithBaseURL(srv.URL+"/"), WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := feedback.NewDispatcher(b, b, b, b, b).WithLogger(log.Discard())
	ctx := context.Background()
	d.Say(ctx, "Hello")
	d.Cue(ctx, feedback.Cue{Sound: "soft_chime.wav", Haptic: feedback.HapticLightPulse, Light: &feedback.Color{R: 1, G: 2, B: 3}})
	d.Ambient(ctx, feedback.AmbientParty)
	d.Slide(ctx, feedback.SlideNext)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/speak", "/sound", "/haptic", "/light", "/pattern", "/slide"}
	if len(*reqs) != len(want) {
		t.Fatalf("Expected %d requests, got %d", len(want), len(*reqs))
	}
	for i, p := range want {
		if (*reqs)[i].path != p {
			t.Errorf("Request %d path = %s, want %s", i, (*reqs)[i].path, p)
		}
	}
	if (*reqs)[0].body["text"] != "Hello" {
		t.Errorf("Unexpected speak body %v", (*reqs)[0].body)
	}
	if (*reqs)[2].body["duration_ms"] != float64(200) {
		t.Errorf("Unexpected haptic body %v", (*reqs)[2].body)
	}
	if (*reqs)[3].body["b"] != float64(3) {
		t.Errorf("Unexpected light body %v", (*reqs)[3].body)
	}
}

func TestBridge_RetriesServerErrors(t *testing.T) {
	srv, reqs, mu := newServer(t, func(n int32) int {
		if n == 1 {
			return http.StatusBadGateway
		}
		return http.StatusOK
	})
	b, _ := New(WithBaseURL(srv.URL), WithRetries(2, time.Millisecond), WithLogger(log.Discard()))

	if err := b.Speak(context.Background(), "retry me"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(*reqs) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(*reqs))
	}
}

func TestBridge_ClientErrorsAreNotRetried(t *testing.T) {
	srv, reqs, mu := newServer(t, func(int32) int { return http.StatusBadRequest })
	b, _ := New(WithBaseURL(srv.URL), WithRetries(3, time.Millisecond), WithLogger(log.Discard()))

	err := b.SetPattern(context.Background(), "party")
	var se *httpc.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("Expected StatusError 400, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(*reqs) != 1 {
		t.Errorf("Expected a single attempt, got %d", len(*reqs))
	}
}
