// Package bridge forwards feedback requests (speech, sounds, haptics,
// lighting and slide control) to an HTTP device bridge.
//
// The bridge is any service that accepts small JSON documents:
//
//	POST /speak   {"text": "..."}
//	POST /sound   {"id": "soft_chime.wav"}
//	POST /haptic  {"name": "light_pulse", "intensity": 0.3, "duration_ms": 200}
//	POST /light   {"r": 200, "g": 200, "b": 255}
//	POST /pattern {"name": "party"}
//	POST /slide   {"action": "next"}
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-gesture/internal/httpc"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/feedback"
)

// ErrNoBaseURL is returned by New without WithBaseURL.
var ErrNoBaseURL = errors.New("bridge: base URL is required")

// Config holds the bridge client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Timeout:    httpc.DefaultTimeout,
		MaxRetries: 1,
		RetryDelay: 100 * time.Millisecond,
	}
}

// Option configures a Bridge.
type Option func(*Config)

// WithBaseURL sets the bridge address, e.g. http://localhost:8090.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetries sets how often a failed request is retried.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = n
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Bridge implements every feedback sink over HTTP.
type Bridge struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a bridge client.
func New(opts ...Option) (*Bridge, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("bridge")
	}
	return &Bridge{
		cfg:    cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: logger,
	}, nil
}

// Speak implements feedback.Speaker.
func (b *Bridge) Speak(ctx context.Context, text string) error {
	return b.post(ctx, "/speak", map[string]string{"text": text})
}

// PlaySound implements feedback.Sounder.
func (b *Bridge) PlaySound(ctx context.Context, id string) error {
	return b.post(ctx, "/sound", map[string]string{"id": id})
}

// Trigger implements feedback.Haptics.
func (b *Bridge) Trigger(ctx context.Context, p feedback.HapticPattern) error {
	return b.post(ctx, "/haptic", map[string]any{
		"name":        p.Name,
		"intensity":   p.Intensity,
		"duration_ms": p.Duration.Milliseconds(),
	})
}

// SetColor implements feedback.Lights.
func (b *Bridge) SetColor(ctx context.Context, c feedback.Color) error {
	return b.post(ctx, "/light", c)
}

// SetPattern implements feedback.Lights.
func (b *Bridge) SetPattern(ctx context.Context, name string) error {
	return b.post(ctx, "/pattern", map[string]string{"name": name})
}

// Slide implements feedback.Slides.
func (b *Bridge) Slide(ctx context.Context, action feedback.SlideAction) error {
	return b.post(ctx, "/slide", map[string]string{"action": string(action)})
}

func (b *Bridge) post(ctx context.Context, path string, body any) error {
	url := b.cfg.BaseURL + path
	var err error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.cfg.RetryDelay):
			}
		}
		if err = httpc.PostJSON(ctx, b.client, url, body); err == nil {
			return nil
		}
		var se *httpc.StatusError
		if errors.As(err, &se) && se.Status < 500 {
			return err
		}
		b.logger.Debug("bridge request failed", "path", path, "attempt", attempt+1, "err", err)
	}
	return err
}
