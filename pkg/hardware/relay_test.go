package hardware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
)

type fakePort struct {
	mu       sync.Mutex
	written  bytes.Buffer
	reader   io.Reader
	writeErr error
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.written.Write(p)
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, io.EOF
	}
	return f.reader.Read(p)
}

func (f *fakePort) sent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func TestToken(t *testing.T) {
	tests := []struct {
		button int
		on     bool
		want   byte
		ok     bool
	}{
		{0, true, '2', true},
		{0, false, '1', true},
		{1, true, '3', true},
		{1, false, '4', true},
		{2, true, '5', true},
		{2, false, '6', true},
		{3, true, '7', true},
		{3, false, 0, false},
	}
	for _, tc := range tests {
		got, ok, err := Token(tc.button, tc.on)
		if err != nil {
			t.Fatalf("Token(%d,%v): %v", tc.button, tc.on, err)
		}
		if got != tc.want || ok != tc.ok {
			t.Errorf("Token(%d,%v) = %q,%v; want %q,%v", tc.button, tc.on, got, ok, tc.want, tc.ok)
		}
	}
	if _, _, err := Token(9, true); !errors.Is(err, ErrUnknownButton) {
		t.Errorf("Expected ErrUnknownButton, got %v", err)
	}
}

func TestConfirmation(t *testing.T) {
	tests := []struct {
		button int
		on     bool
		want   string
	}{
		{0, true, "Light is now on"},
		{0, false, "Light is now off"},
		{1, true, "Fan is now running"},
		{1, false, "Fan is now off"},
		{2, true, "Pump is now on"},
		{3, true, ""},
	}
	for _, tc := range tests {
		if got := Confirmation(tc.button, tc.on); got != tc.want {
			t.Errorf("Confirmation(%d,%v) = %q, want %q", tc.button, tc.on, got, tc.want)
		}
	}
}

func TestTrigger(t *testing.T) {
	port := &fakePort{}
	r := NewRelay(port)

	cmd, err := r.Trigger(1, true)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if !cmd.Sent || cmd.Token != "3" || cmd.Device != "Fan" || cmd.State() != "ON" {
		t.Errorf("Unexpected command %+v", cmd)
	}

	cmd, err = r.Trigger(3, false)
	if err != nil || cmd.Sent {
		t.Errorf("Data button off should send nothing, got %+v err=%v", cmd, err)
	}

	r.Trigger(0, false)
	if port.sent() != "31" {
		t.Errorf("Expected tokens \"31\", got %q", port.sent())
	}
}

func TestTrigger_Errors(t *testing.T) {
	var nilRelay *Relay
	if _, err := nilRelay.Trigger(0, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	port := &fakePort{writeErr: errors.New("cable pulled")}
	r := NewRelay(port)
	cmd, err := r.Trigger(0, true)
	if err == nil || cmd.Sent {
		t.Errorf("Expected write error, got %+v err=%v", cmd, err)
	}
	if _, err := r.Trigger(-1, true); !errors.Is(err, ErrUnknownButton) {
		t.Errorf("Expected ErrUnknownButton, got %v", err)
	}
}

func TestListen_Lines(t *testing.T) {
	port := &fakePort{reader: strings.NewReader("temp=21.5\r\n\nhumidity=40\npartial")}
	r := NewRelay(port)

	var lines []string
	if err := r.Listen(context.Background(), func(l string) { lines = append(lines, l) }); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	want := []string{"temp=21.5", "humidity=40", "partial"}
	if len(lines) != len(want) {
		t.Fatalf("Expected %v, got %v", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestListen_CancelClosesDevice(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewRelay(struct {
		io.Reader
		io.Writer
		io.Closer
	}{pr, io.Discard, pr})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Listen(ctx, func(string) {}) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not stop on cancel")
	}
}

// brokenPort fails every read, like an unplugged board.
type brokenPort struct {
	fakePort
	closed bool
}

func (b *brokenPort) Read([]byte) (int, error) {
	return 0, errors.New("input/output error")
}

func (b *brokenPort) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func TestServe_ReadErrorIsNotFatal(t *testing.T) {
	port := &brokenPort{}
	r := NewRelay(port).WithLogger(log.Discard())

	if err := r.Listen(context.Background(), func(string) {}); err == nil {
		t.Fatal("Listen should surface the read error")
	}

	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background(), func(string) {}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve should absorb device failures, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after losing a device it cannot reopen")
	}

	if r.Connected() {
		t.Error("Relay should report disconnected")
	}
	port.mu.Lock()
	closed := port.closed
	port.mu.Unlock()
	if !closed {
		t.Error("Failed device should be closed")
	}
	if _, err := r.Trigger(0, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestServe_Reconnects(t *testing.T) {
	fresh := &fakePort{reader: strings.NewReader("temp=22\n")}
	var mu sync.Mutex
	attempts := 0
	open := func() (io.ReadWriter, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("no such device")
		}
		return fresh, nil
	}
	r := NewRelay(&brokenPort{}).WithLogger(log.Discard()).WithReconnect(open, 5*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, func(l string) { lines <- l }) }()

	select {
	case l := <-lines:
		if l != "temp=22" {
			t.Errorf("Unexpected line %q", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No output after reconnect")
	}

	if _, err := r.Trigger(1, true); err != nil && !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unexpected trigger error %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}
