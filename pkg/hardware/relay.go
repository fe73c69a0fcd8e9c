// Package hardware forwards home-automation button presses to a serial
// relay board as single-byte command tokens and passes device output back
// to the caller line by line.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-gesture/internal/log"
)

// DataButton requests a sensor reading from the board.
const DataButton = 3

var (
	// ErrUnknownButton is returned for buttons without a command token.
	ErrUnknownButton = errors.New("hardware: unknown button")

	// ErrNotConnected is returned when no serial device is attached.
	ErrNotConnected = errors.New("hardware: relay not connected")
)

type tokens struct {
	on, off byte
}

// Button tokens. A zero token means the state has no command.
var commandMap = map[int]tokens{
	0: {on: '2', off: '1'},
	1: {on: '3', off: '4'},
	2: {on: '5', off: '6'},
	3: {on: '7'},
}

var deviceNames = map[int]string{
	0: "Light",
	1: "Fan",
	2: "Pump",
}

// Token returns the command byte for a button state. ok is false when the
// state has no command (the data button has no off token).
func Token(button int, on bool) (token byte, ok bool, err error) {
	t, exists := commandMap[button]
	if !exists {
		return 0, false, fmt.Errorf("%w: %d", ErrUnknownButton, button)
	}
	token = t.off
	if on {
		token = t.on
	}
	return token, token != 0, nil
}

// DeviceName returns the appliance wired to button.
func DeviceName(button int) (string, bool) {
	n, ok := deviceNames[button]
	return n, ok
}

// Confirmation returns the sentence announcing a state change, or "" for
// buttons without a named device.
func Confirmation(button int, on bool) string {
	name, ok := DeviceName(button)
	if !ok {
		return ""
	}
	if !on {
		return name + " is now off"
	}
	if button == 1 {
		return name + " is now running"
	}
	return name + " is now on"
}

// Command is one forwarded button press.
type Command struct {
	Button int    `json:"button"`
	On     bool   `json:"on"`
	Token  string `json:"token,omitempty"`
	Device string `json:"device,omitempty"`
	Sent   bool   `json:"sent"`
}

// State renders On as the board's ON/OFF wording.
func (c Command) State() string {
	if c.On {
		return "ON"
	}
	return "OFF"
}

// Config describes the serial connection.
type Config struct {
	Port     string
	BaudRate int
	// ReadTimeout bounds each read so Listen can notice cancellation.
	ReadTimeout time.Duration
	// MinBackoff and MaxBackoff bound the wait between reopen attempts
	// after the device fails.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultConfig returns the board's 9600 baud defaults.
func DefaultConfig() Config {
	return Config{
		Port:        "/dev/ttyUSB0",
		BaudRate:    9600,
		ReadTimeout: 2 * time.Second,
		MinBackoff:  time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// Relay writes command tokens to a serial device.
type Relay struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	closer io.Closer
	logger *slog.Logger

	reopen     func() (io.ReadWriter, error)
	minBackoff time.Duration
	maxBackoff time.Duration
}

// Open connects to the serial port described by cfg. The relay reopens the
// port on its own when Serve sees it fail.
func Open(cfg Config) (*Relay, error) {
	def := DefaultConfig()
	if cfg.BaudRate == 0 {
		cfg.BaudRate = def.BaudRate
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.MinBackoff)
	}
	port, err := openPort(cfg)
	if err != nil {
		return nil, err
	}
	r := NewRelay(port).WithReconnect(func() (io.ReadWriter, error) {
		return openPort(cfg)
	}, cfg.MinBackoff, cfg.MaxBackoff)
	r.logger.Info("serial relay connected", "port", cfg.Port, "baud", cfg.BaudRate)
	return r, nil
}

func openPort(cfg Config) (serial.Port, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	return port, nil
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// NewRelay wraps an already open device.
func NewRelay(rw io.ReadWriter) *Relay {
	r := &Relay{rw: rw, logger: log.Component("hardware")}
	r.closer, _ = rw.(io.Closer)
	return r
}

// WithReconnect lets Serve replace a failed device with the result of open,
// waiting between minBackoff and maxBackoff between attempts.
func (r *Relay) WithReconnect(open func() (io.ReadWriter, error), minBackoff, maxBackoff time.Duration) *Relay {
	if minBackoff <= 0 {
		minBackoff = DefaultConfig().MinBackoff
	}
	r.reopen = open
	r.minBackoff = minBackoff
	r.maxBackoff = max(maxBackoff, minBackoff)
	return r
}

// WithLogger replaces the relay logger.
func (r *Relay) WithLogger(l *slog.Logger) *Relay {
	r.logger = l
	return r
}

// Connected reports whether a device is attached.
func (r *Relay) Connected() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rw != nil
}

// Trigger sends the token for a button state.
func (r *Relay) Trigger(button int, on bool) (Command, error) {
	cmd := Command{Button: button, On: on}
	cmd.Device, _ = DeviceName(button)

	token, ok, err := Token(button, on)
	if err != nil {
		return cmd, err
	}
	if !ok {
		return cmd, nil
	}
	cmd.Token = string(token)

	if r == nil {
		return cmd, ErrNotConnected
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rw == nil {
		return cmd, ErrNotConnected
	}
	if _, err := r.rw.Write([]byte{token}); err != nil {
		return cmd, fmt.Errorf("write token %q: %w", token, err)
	}
	cmd.Sent = true
	r.logger.Debug("button sent", "button", button+1, "state", cmd.State())
	return cmd, nil
}

func (r *Relay) device() (io.ReadWriter, io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rw, r.closer
}

// Listen reads device output and calls fn for every non-empty line until
// ctx is cancelled or the device closes.
func (r *Relay) Listen(ctx context.Context, fn func(line string)) error {
	if r == nil {
		return ErrNotConnected
	}
	rw, closer := r.device()
	if rw == nil {
		return ErrNotConnected
	}

	if closer != nil {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}

	buf := make([]byte, 256)
	var line []byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			if b != '\n' {
				line = append(line, b)
				continue
			}
			if s := strings.TrimSpace(string(line)); s != "" {
				fn(s)
			}
			line = line[:0]
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				if s := strings.TrimSpace(string(line)); s != "" && ctx.Err() == nil {
					fn(s)
				}
				return nil
			}
			return fmt.Errorf("read serial: %w", err)
		}
	}
}

// Serve listens like Listen but never fails: when the device errors or goes
// away it is dropped, the failure is logged and, if the relay can reconnect,
// the port is reopened with exponential backoff. Trigger reports
// ErrNotConnected while no device is attached. Serve returns nil once ctx
// is cancelled, or when the device is lost and cannot be reopened.
func (r *Relay) Serve(ctx context.Context, fn func(line string)) error {
	if r == nil {
		return nil
	}
	for {
		err := r.Listen(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, ErrNotConnected) {
			r.logger.Warn("serial relay failed", "err", err)
		} else {
			r.logger.Warn("serial relay closed")
		}
		r.disconnect()

		if r.reopen == nil || !r.reconnect(ctx) {
			return nil
		}
	}
}

func (r *Relay) disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer != nil {
		r.closer.Close()
	}
	r.rw, r.closer = nil, nil
}

// reconnect retries the opener until it succeeds or ctx is cancelled.
func (r *Relay) reconnect(ctx context.Context) bool {
	backoff := r.minBackoff
	for {
		if !sleep(ctx, backoff) {
			return false
		}
		rw, err := r.reopen()
		if err == nil {
			r.mu.Lock()
			r.rw = rw
			r.closer, _ = rw.(io.Closer)
			r.mu.Unlock()
			r.logger.Info("serial relay reconnected")
			return true
		}
		r.logger.Warn("serial relay unavailable", "retry_in", backoff, "err", err)
		backoff = min(backoff*2, r.maxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close releases the device.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
