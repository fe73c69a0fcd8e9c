package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

// Preferences is the state restored at the start of a session.
type Preferences struct {
	Model           usermodel.Snapshot `json:"user_model"`
	Context         string             `json:"context"`
	MinStableFrames int                `json:"min_stable_frames"`
	Interactions    int                `json:"interactions"`
	SavedAt         time.Time          `json:"saved_at"`
}

// FeedbackEntry is one logged rating.
type FeedbackEntry struct {
	Kind      string    `json:"kind"`
	Rating    float64   `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomGesture is a registered gesture and its response.
type CustomGesture struct {
	Name      string            `json:"name"`
	Response  announce.Response `json:"response"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SavePreferences replaces the saved preferences.
func (s *SQLite) SavePreferences(ctx context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready() {
		return nil
	}

	model, err := json.Marshal(p.Model)
	if err != nil {
		return fmt.Errorf("encode user model: %w", err)
	}
	if p.SavedAt.IsZero() {
		p.SavedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (id, user_model, context, min_stable_frames, interactions, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_model = excluded.user_model,
			context = excluded.context,
			min_stable_frames = excluded.min_stable_frames,
			interactions = excluded.interactions,
			saved_at = excluded.saved_at
	`, string(model), p.Context, p.MinStableFrames, p.Interactions, formatTime(p.SavedAt))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// LoadPreferences returns the saved preferences. ok is false when nothing
// was saved or persistence is disabled.
func (s *SQLite) LoadPreferences(ctx context.Context) (p Preferences, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready() {
		return Preferences{}, false, nil
	}

	var model, savedAt string
	row := s.db.QueryRowContext(ctx, `
		SELECT user_model, context, min_stable_frames, interactions, saved_at
		FROM preferences WHERE id = 1
	`)
	if err := row.Scan(&model, &p.Context, &p.MinStableFrames, &p.Interactions, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Preferences{}, false, nil
		}
		return Preferences{}, false, fmt.Errorf("load preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(model), &p.Model); err != nil {
		return Preferences{}, false, fmt.Errorf("decode user model: %w", err)
	}
	p.SavedAt = parseTime(savedAt)
	return p, true, nil
}

// RecordFeedback appends a rating to the feedback log.
func (s *SQLite) RecordFeedback(ctx context.Context, e FeedbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready() {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO feedback_log (kind, rating, created_at) VALUES (?, ?, ?)",
		e.Kind, e.Rating, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// RecentFeedback returns up to limit entries, newest first.
func (s *SQLite) RecentFeedback(ctx context.Context, limit int) ([]FeedbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, rating, created_at FROM feedback_log ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []FeedbackEntry
	for rows.Next() {
		var e FeedbackEntry
		var created string
		if err := rows.Scan(&e.Kind, &e.Rating, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveGesture stores or replaces a custom gesture response.
func (s *SQLite) SaveGesture(ctx context.Context, g CustomGesture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready() {
		return nil
	}

	resp, err := json.Marshal(g.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO custom_gestures (name, response, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET response = excluded.response, updated_at = excluded.updated_at
	`, g.Name, string(resp), formatTime(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save gesture %q: %w", g.Name, err)
	}
	return nil
}

// LoadGestures returns every stored custom gesture ordered by name.
func (s *SQLite) LoadGestures(ctx context.Context) ([]CustomGesture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready() {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, response, updated_at FROM custom_gestures ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query gestures: %w", err)
	}
	defer rows.Close()

	var out []CustomGesture
	for rows.Next() {
		var g CustomGesture
		var resp, updated string
		if err := rows.Scan(&g.Name, &resp, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(resp), &g.Response); err != nil {
			return nil, fmt.Errorf("decode gesture %q: %w", g.Name, err)
		}
		g.UpdatedAt = parseTime(updated)
		out = append(out, g)
	}
	return out, rows.Err()
}
