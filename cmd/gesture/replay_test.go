package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/pkg/engine"
)

func TestReplay(t *testing.T) {
	script := strings.Join([]string{
		`# warm up`,
		`{"label":"Open","confidence":0.9}`,
		`{"label":"Open","confidence":0.9}`,
		`{"label":"Open","confidence":0.9}`,
		`{"text":"What gesture"}`,
		`not json`,
		`{}`,
	}, "\n")

	var out bytes.Buffer
	if err := replay(context.Background(), engine.DefaultConfig(), strings.NewReader(script), &out, 600*time.Millisecond); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var results []replayResult
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r struct {
			Line    int             `json:"line"`
			Sample  *engine.Outcome `json:"sample"`
			Command map[string]any  `json:"command"`
			Said    []string        `json:"said"`
			Error   string          `json:"error"`
		}
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		results = append(results, replayResult{Line: r.Line, Sample: r.Sample, Command: r.Command, Said: r.Said, Error: r.Error})
	}
	if len(results) != 6 {
		t.Fatalf("Expected 6 results (comment skipped), got %d", len(results))
	}

	if s := results[0].Sample; s == nil || s.Status != engine.StatusInsufficientData {
		t.Errorf("Line 2: expected insufficient data, got %+v", results[0])
	}
	if s := results[2].Sample; s == nil || s.Status != engine.StatusAnnounced {
		t.Errorf("Line 4: expected announcement, got %+v", results[2])
	}
	if len(results[2].Said) == 0 {
		t.Error("Expected speech for the announcement")
	}

	cmd, _ := results[3].Command.(map[string]any)
	if cmd["reply"] != "Current gesture: Open" {
		t.Errorf("Unexpected command outcome %v", cmd)
	}
	if results[4].Error == "" || results[5].Error == "" {
		t.Errorf("Expected parse and empty-line errors, got %q and %q", results[4].Error, results[5].Error)
	}
}
