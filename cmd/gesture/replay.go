package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/engine"
	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
)

func newReplayCmd(load loader) *cobra.Command {
	var step time.Duration
	cmd := &cobra.Command{
		Use:   "replay [script.jsonl]",
		Short: "Feed a recorded session through an offline engine",
		Long: `Replay reads one JSON object per line and prints what each produced.

A line with "label" and "confidence" is a classifier sample; a line with
"text" is a transcript. Lines without a timestamp are spaced by --step.
Reads standard input when no file is given.`,
		Example: `  echo '{"label":"Open","confidence":0.9}' | gesture replay`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			in := io.Reader(os.Stdin)
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return replay(cmd.Context(), cfg.EngineConfig(), in, cmd.OutOrStdout(), step)
		},
	}
	cmd.Flags().DurationVar(&step, "step", 100*time.Millisecond, "time between lines without a timestamp")
	return cmd
}

// replayLine is one step of a replay script.
type replayLine struct {
	Label      string    `json:"label,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Text       string    `json:"text,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// replayResult is printed for every script line.
type replayResult struct {
	Line    int             `json:"line"`
	Sample  *engine.Outcome `json:"sample,omitempty"`
	Command any             `json:"command,omitempty"`
	Said    []string        `json:"said,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// scriptClock advances with the script rather than the wall clock.
type scriptClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *scriptClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *scriptClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func replay(ctx context.Context, cfg engine.Config, in io.Reader, out io.Writer, step time.Duration) error {
	rec := feedback.NewRecorder()
	clock := &scriptClock{t: time.Now()}
	eng := engine.New(cfg,
		engine.WithDispatcher(feedback.NewDispatcher(rec, rec, rec, rec, rec)),
		engine.WithClock(clock.now),
		engine.WithLogger(log.Component("replay")),
	)
	if err := eng.Start(ctx); err != nil {
		return err
	}
	rec.Reset()

	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		res := replayResult{Line: n}
		var l replayLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			res.Error = fmt.Sprintf("parse: %v", err)
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}

		if l.Timestamp.IsZero() {
			clock.set(clock.now().Add(step))
		} else {
			clock.set(l.Timestamp)
		}

		switch {
		case l.Text != "":
			res.Command = eng.HandleTranscript(ctx, l.Text)
		case l.Label != "":
			o := eng.ProcessSample(ctx, gesture.Sample{Label: l.Label, Confidence: l.Confidence, Timestamp: clock.now()})
			res.Sample = &o
		default:
			res.Error = "line has neither label nor text"
		}
		res.Said = rec.Said()
		rec.Reset()

		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return scanner.Err()
}
