// Package engine owns every interpretation component and serializes all
// state changes behind one lock.
//
// Pose samples, voice transcripts and operator requests arrive on different
// goroutines. Each entry point mutates state under the engine lock and
// collects the resulting speech, cues, lighting changes and telemetry in an
// effects batch. The batch is delivered after the lock is released. Store
// writes run on a background queue, and callers that need device output off
// the sample path wrap the dispatcher with feedback.Async.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/combo"
	"github.com/teslashibe/go-gesture/pkg/command"
	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/hardware"
	"github.com/teslashibe/go-gesture/pkg/interaction"
	"github.com/teslashibe/go-gesture/pkg/mode"
	"github.com/teslashibe/go-gesture/pkg/stabilizer"
	"github.com/teslashibe/go-gesture/pkg/store"
	"github.com/teslashibe/go-gesture/pkg/usermodel"
)

// Config aggregates the component configurations.
type Config struct {
	Stabilizer     stabilizer.Config
	Announce       announce.Config
	Mode           mode.Config
	Command        command.Config
	UserModel      usermodel.Config
	ComboTimeout   time.Duration
	InitialContext interaction.Context
	DetectContext  bool // Pick work or casual from the clock at Start
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Stabilizer:     stabilizer.DefaultConfig(),
		Announce:       announce.DefaultConfig(),
		Mode:           mode.DefaultConfig(),
		Command:        command.DefaultConfig(),
		UserModel:      usermodel.DefaultConfig(),
		ComboTimeout:   combo.DefaultTimeout,
		InitialContext: interaction.Casual,
	}
}

// Relay drives the serial relay board.
type Relay interface {
	Trigger(button int, on bool) (hardware.Command, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher sets the output devices.
func WithDispatcher(d *feedback.Dispatcher) Option {
	return func(e *Engine) {
		if d != nil {
			e.out = d
		}
	}
}

// WithPublisher sets the telemetry sink.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.pub = p
		}
	}
}

// WithStore enables persistence of preferences, feedback and custom gestures.
func WithStore(s *store.SQLite) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithRelay attaches the home automation relay.
func WithRelay(r Relay) Option {
	return func(e *Engine) {
		e.relay = r
	}
}

// WithLibrary replaces the built-in response library.
func WithLibrary(l *announce.Library) Option {
	return func(e *Engine) {
		if l != nil {
			e.library = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger replaces the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithVoiceInput marks speech recognition as attached for diagnostics.
func WithVoiceInput(attached bool) Option {
	return func(e *Engine) {
		e.voiceInput = attached
	}
}

// Engine is the gesture and voice interpretation core.
type Engine struct {
	cfg Config

	out     *feedback.Dispatcher
	pub     Publisher
	store   *store.SQLite
	writes  *feedback.Queue
	relay   Relay
	library *announce.Library
	now     func() time.Time
	logger  *slog.Logger

	mu          sync.Mutex
	filter      *stabilizer.Filter
	model       *usermodel.Model
	controller  *announce.Controller
	combos      *combo.Detector
	modes       *mode.Machine
	commands    *command.Interpreter
	context     interaction.Context
	ambient     string
	active      bool
	voiceInput  bool
	observers   []mode.Observer
	lastSample  gesture.Sample
	hasSample   bool
	lastChanged gesture.Decision
	fx          *effects
}

// New wires an engine. It does not speak or touch devices until Start.
func New(cfg Config, opts ...Option) *Engine {
	if cfg.InitialContext == "" {
		cfg.InitialContext = interaction.Casual
	}
	e := &Engine{
		cfg:     cfg,
		out:     feedback.NewDispatcher(nil, nil, nil, nil, nil),
		pub:     nopPublisher{},
		library: announce.DefaultLibrary(),
		now:     time.Now,
		logger:  log.Component("engine"),
		context: cfg.InitialContext,
		ambient: feedback.AmbientReady,
		active:  true,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.filter = stabilizer.New(cfg.Stabilizer)
	e.model = usermodel.New(cfg.UserModel)
	e.controller = announce.NewController(cfg.Announce, e.library, e.model, e.filter, e.filter)
	e.combos = combo.NewDefaultDetector()
	e.combos.SetTimeout(cfg.ComboTimeout)
	e.modes = mode.New(cfg.Mode)
	e.modes.Subscribe(e.onModeChange)
	e.commands = command.New(cfg.Command)
	e.registerCommands()
	if e.store != nil {
		e.writes = feedback.NewQueue("store", feedback.DefaultQueueSize).WithLogger(e.logger)
	}
	return e
}

// Library returns the response library.
func (e *Engine) Library() *announce.Library {
	return e.library
}

// Model returns the adaptive user model.
func (e *Engine) Model() *usermodel.Model {
	return e.model
}

// Subscribe registers a mode observer. Observers run after the engine lock
// is released, in registration order.
func (e *Engine) Subscribe(o mode.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// onModeChange runs under the engine lock from the mode machine.
func (e *Engine) onModeChange(m mode.Mode) {
	if e.fx == nil {
		return
	}
	e.fx.modes = append(e.fx.modes, m)
	e.fx.publish(EventModeChange, map[string]any{"mode": m})
}

// effects collects output produced under the lock.
type effects struct {
	at      time.Time
	speech  []string
	cues    []feedback.Cue
	ambient []string
	slides  []feedback.SlideAction
	events  []Event
	modes   []mode.Mode
	io      []feedback.Job
}

func (fx *effects) say(text string) {
	if text != "" {
		fx.speech = append(fx.speech, text)
	}
}

func (fx *effects) publish(t EventType, data any) {
	fx.events = append(fx.events, newEvent(t, fx.at, data))
}

// begin locks the engine and opens an effects batch.
func (e *Engine) begin() *effects {
	e.mu.Lock()
	e.fx = &effects{at: e.now()}
	return e.fx
}

// end closes the batch, unlocks and delivers the effects.
func (e *Engine) end(ctx context.Context) {
	fx := e.fx
	e.fx = nil
	observers := append([]mode.Observer(nil), e.observers...)
	e.mu.Unlock()
	e.flush(ctx, fx, observers)
}

func (e *Engine) flush(ctx context.Context, fx *effects, observers []mode.Observer) {
	if fx == nil {
		return
	}
	for _, m := range fx.modes {
		for _, o := range observers {
			o(m)
		}
	}
	for _, ev := range fx.events {
		e.pub.Publish(ev)
	}
	for _, state := range fx.ambient {
		e.out.Ambient(ctx, state)
	}
	for _, a := range fx.slides {
		e.out.Slide(ctx, a)
	}
	for _, c := range fx.cues {
		e.out.Cue(ctx, c)
	}
	for _, text := range fx.speech {
		e.out.Say(ctx, text)
	}
	for _, fn := range fx.io {
		if err := e.writes.Submit("store", fn); err != nil {
			e.logger.Warn("store write dropped", "err", err)
		}
	}
}

// Sync waits until the store writes queued so far have finished.
func (e *Engine) Sync(ctx context.Context) error {
	if e.writes == nil {
		return nil
	}
	return e.writes.Wait(ctx)
}

// setAmbientLocked records an ambient lighting change.
func (e *Engine) setAmbientLocked(state string) {
	e.ambient = state
	e.fx.ambient = append(e.fx.ambient, state)
	e.fx.publish(EventAmbientChanged, map[string]any{"state": state})
}

// preferencesLocked captures the state worth persisting.
func (e *Engine) preferencesLocked() store.Preferences {
	return store.Preferences{
		Model:           e.model.Snapshot(),
		Context:         string(e.context),
		MinStableFrames: e.filter.MinStableFrames(),
		Interactions:    e.controller.Interactions(),
		SavedAt:         e.fx.at,
	}
}

// savePreferencesLocked schedules a preference write after unlock.
func (e *Engine) savePreferencesLocked() {
	if e.store == nil {
		return
	}
	p := e.preferencesLocked()
	e.fx.io = append(e.fx.io, func(ctx context.Context) {
		if err := e.store.SavePreferences(ctx, p); err != nil {
			e.logger.Warn("failed to save preferences", "err", err)
		}
	})
}
