// Package transcript delivers recognized speech to the engine. Speech
// recognition itself runs elsewhere; listeners only receive its text.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gesture/internal/log"
)

// Listener emits lowercase utterances until ctx is cancelled or the source
// ends. The returned channel is closed when Listen returns.
type Listener interface {
	Listen(ctx context.Context) (<-chan string, error)
}

// normalize lowercases and trims an utterance. Empty results are dropped.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// frame is the JSON shape accepted from recognizers. Plain text frames are
// accepted too.
type frame struct {
	Text    string `json:"text"`
	Final   *bool  `json:"final,omitempty"`
	IsFinal *bool  `json:"is_final,omitempty"`
}

// parseFrame extracts final text from a frame. Partial results are skipped.
func parseFrame(data []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "{") {
		return normalize(trimmed), true
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", false
	}
	if (f.Final != nil && !*f.Final) || (f.IsFinal != nil && !*f.IsFinal) {
		return "", false
	}
	text := normalize(f.Text)
	return text, text != ""
}

// WSConfig configures a WSListener.
type WSConfig struct {
	URL            string
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	HandshakeLimit time.Duration
	Buffer         int
}

// DefaultWSConfig returns the stock reconnect settings for url.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:            url,
		MinBackoff:     500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		HandshakeLimit: 10 * time.Second,
		Buffer:         16,
	}
}

// WSListener reads transcripts from a speech recognition websocket and
// reconnects with exponential backoff when the connection drops.
type WSListener struct {
	cfg    WSConfig
	dialer websocket.Dialer
	logger *slog.Logger
}

// NewWSListener creates a listener.
func NewWSListener(cfg WSConfig) *WSListener {
	def := DefaultWSConfig(cfg.URL)
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.HandshakeLimit <= 0 {
		cfg.HandshakeLimit = def.HandshakeLimit
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	return &WSListener{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeLimit},
		logger: log.Component("transcript"),
	}
}

// Listen starts the receive loop.
func (l *WSListener) Listen(ctx context.Context) (<-chan string, error) {
	if l.cfg.URL == "" {
		return nil, errors.New("transcript: websocket URL is required")
	}
	out := make(chan string, l.cfg.Buffer)
	go l.run(ctx, out)
	return out, nil
}

func (l *WSListener) run(ctx context.Context, out chan<- string) {
	defer close(out)
	backoff := l.cfg.MinBackoff

	for ctx.Err() == nil {
		conn, _, err := l.dialer.DialContext(ctx, l.cfg.URL, nil)
		if err != nil {
			l.logger.Warn("speech recognizer unreachable", "url", l.cfg.URL, "retry_in", backoff, "err", err)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, l.cfg.MaxBackoff)
			continue
		}
		l.logger.Info("speech recognizer connected", "url", l.cfg.URL)
		backoff = l.cfg.MinBackoff

		err = l.receive(ctx, conn, out)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("speech recognizer disconnected", "err", err)
		if !sleep(ctx, backoff) {
			return
		}
	}
}

// receive reads frames until the connection fails or ctx is cancelled.
func (l *WSListener) receive(ctx context.Context, conn *websocket.Conn, out chan<- string) error {
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		text, ok := parseFrame(data)
		if !ok {
			continue
		}
		select {
		case out <- text:
		case <-ctx.Done():
			return ctx.Err()
		}
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

// ReaderListener emits one utterance per line of r, e.g. stdin or a
// recorded session.
type ReaderListener struct {
	r io.Reader
}

// NewReaderListener creates a listener over r.
func NewReaderListener(r io.Reader) *ReaderListener {
	return &ReaderListener{r: r}
}

// Listen starts reading lines.
func (l *ReaderListener) Listen(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			text, ok := parseFrame(scanner.Bytes())
			if !ok {
				continue
			}
			select {
			case out <- text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
