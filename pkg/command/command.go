// Package command scores transcribed speech for command likelihood and
// dispatches accepted commands to context-specific and global rule tables.
package command

import (
	"strings"
	"time"

	"github.com/teslashibe/go-gesture/pkg/interaction"
)

// Status is the result of interpreting one utterance.
type Status string

const (
	// StatusAccepted means a rule claimed the command.
	StatusAccepted Status = "accepted"
	// StatusNoise means the confidence was below the threshold.
	StatusNoise Status = "noise"
	// StatusCooldown means the command arrived too soon after the last one.
	StatusCooldown Status = "cooldown"
	// StatusUnmatched means the command passed the gates but no rule claimed it.
	StatusUnmatched Status = "unmatched"
)

// Scope tells which table claimed a command.
type Scope string

const (
	ScopeContext Scope = "context"
	ScopeGlobal  Scope = "global"
)

// DefaultKeywords mark an utterance as a likely command.
var DefaultKeywords = []string{
	"gesture", "reset", "stop", "pause", "resume", "help",
	"mode", "preference", "setting", "voice", "feedback",
}

// Config holds the noise and cooldown gates.
type Config struct {
	MinConfidence float64
	Cooldown      time.Duration
	Keywords      []string
}

// DefaultConfig returns a 0.6 confidence gate and a 500ms cooldown.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.6,
		Cooldown:      500 * time.Millisecond,
		Keywords:      DefaultKeywords,
	}
}

// Handler runs a claimed command and returns the reply to speak.
type Handler func(text string) string

// Rule claims commands containing any of its phrases.
type Rule struct {
	Name    string
	Phrases []string
	Handle  Handler
}

// Matches reports whether text contains one of the rule's phrases.
func (r Rule) Matches(text string) bool {
	for _, p := range r.Phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Outcome describes what happened to one utterance.
type Outcome struct {
	Text       string              `json:"text"`
	Status     Status              `json:"status"`
	Confidence float64             `json:"confidence"`
	Context    interaction.Context `json:"context"`
	Rule       string              `json:"rule,omitempty"`
	Scope      Scope               `json:"scope,omitempty"`
	Reply      string              `json:"reply,omitempty"`
}

// Interpreter holds the rule tables and the command cooldown. It is not
// safe for concurrent use; the owning engine serializes access.
type Interpreter struct {
	cfg     Config
	context map[interaction.Context][]Rule
	global  []Rule

	lastAccepted time.Time
	hasLast      bool
}

// New creates an interpreter with empty tables.
func New(cfg Config) *Interpreter {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords
	}
	return &Interpreter{
		cfg:     cfg,
		context: make(map[interaction.Context][]Rule),
	}
}

// HandleContext appends a rule to the table for ctx.
func (i *Interpreter) HandleContext(ctx interaction.Context, r Rule) {
	i.context[ctx] = append(i.context[ctx], r)
}

// HandleGlobal appends a rule to the global table.
func (i *Interpreter) HandleGlobal(r Rule) {
	i.global = append(i.global, r)
}

// Score returns the command confidence for text.
func (i *Interpreter) Score(text string) float64 {
	matches := 0
	for _, k := range i.cfg.Keywords {
		if strings.Contains(text, k) {
			matches++
		}
	}
	// Work in tenths so 0.6 compares exactly.
	tenths := 5 + matches
	if tenths > 9 {
		tenths = 9
	}
	if len(text) < 5 && matches == 0 {
		return float64(tenths) / 20
	}
	return float64(tenths) / 10
}

// Interpret gates and dispatches one lowercase utterance received at now.
func (i *Interpreter) Interpret(text string, ctx interaction.Context, now time.Time) Outcome {
	text = strings.ToLower(strings.TrimSpace(text))
	out := Outcome{Text: text, Context: ctx, Confidence: i.Score(text)}

	if out.Confidence < i.cfg.MinConfidence {
		out.Status = StatusNoise
		return out
	}
	if i.hasLast && now.Sub(i.lastAccepted) < i.cfg.Cooldown {
		out.Status = StatusCooldown
		return out
	}
	i.lastAccepted = now
	i.hasLast = true

	if r, ok := find(i.context[ctx], text); ok {
		return i.run(out, r, ScopeContext)
	}
	if r, ok := find(i.global, text); ok {
		return i.run(out, r, ScopeGlobal)
	}
	out.Status = StatusUnmatched
	return out
}

func (i *Interpreter) run(out Outcome, r Rule, scope Scope) Outcome {
	out.Status = StatusAccepted
	out.Rule = r.Name
	out.Scope = scope
	if r.Handle != nil {
		out.Reply = r.Handle(out.Text)
	}
	return out
}

func find(rules []Rule, text string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(text) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns the names of the global rules followed by the rules for ctx.
func (i *Interpreter) Rules(ctx interaction.Context) []string {
	names := make([]string, 0, len(i.global)+len(i.context[ctx]))
	for _, r := range i.context[ctx] {
		names = append(names, r.Name)
	}
	for _, r := range i.global {
		names = append(names, r.Name)
	}
	return names
}

// Config returns the interpreter configuration.
func (i *Interpreter) Config() Config {
	return i.cfg
}
