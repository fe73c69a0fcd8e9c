package feedback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gesture/internal/log"
)

// DefaultQueueSize bounds pending jobs. When full, new jobs are dropped.
const DefaultQueueSize = 64

var (
	// ErrQueueFull is returned when a job is dropped.
	ErrQueueFull = errors.New("feedback: queue full")
	// ErrQueueClosed is returned for jobs submitted after Close.
	ErrQueueClosed = errors.New("feedback: queue closed")
)

// Job is one unit of device or storage work.
type Job func(ctx context.Context)

type queued struct {
	name    string
	fn      Job
	gen     uint64
	barrier bool
}

// Queue runs jobs on one background goroutine in submission order so
// callers never wait for a slow device.
type Queue struct {
	jobs   chan queued
	done   chan struct{}
	base   context.Context
	abort  context.CancelFunc
	logger *slog.Logger

	mu       sync.Mutex
	gen      uint64
	closed   bool
	cancel   context.CancelFunc // in-flight job
	inFlight bool
	once     sync.Once
}

// NewQueue starts a queue holding up to size pending jobs.
func NewQueue(name string, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	base, abort := context.WithCancel(context.Background())
	q := &Queue{
		jobs:   make(chan queued, size),
		done:   make(chan struct{}),
		base:   base,
		abort:  abort,
		logger: log.Component(name),
	}
	go q.run()
	return q
}

// WithLogger replaces the queue logger.
func (q *Queue) WithLogger(l *slog.Logger) *Queue {
	q.logger = l
	return q
}

// Submit enqueues fn and returns immediately.
func (q *Queue) Submit(name string, fn Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- queued{name: name, fn: fn, gen: q.gen}:
		return nil
	default:
		q.logger.Warn("queue full, dropping job", "job", name)
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs, including one in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.jobs)
	if q.inFlight {
		n++
	}
	return n
}

// Flush cancels the job in flight and discards everything queued behind
// it. It returns the number of discarded jobs.
func (q *Queue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	if q.cancel != nil {
		q.cancel()
	}
	n := 0
	for {
		select {
		case j, ok := <-q.jobs:
			if !ok {
				return n
			}
			if j.barrier {
				j.fn(q.base)
				continue
			}
			n++
		default:
			return n
		}
	}
}

// Wait blocks until every job submitted before the call has finished.
func (q *Queue) Wait(ctx context.Context) error {
	reached := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		select {
		case <-q.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case q.jobs <- queued{name: "wait", fn: func(context.Context) { close(reached) }, gen: q.gen, barrier: true}:
	default:
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.mu.Unlock()

	select {
	case <-reached:
		return nil
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and runs the ones already queued. When ctx
// expires first, the remaining work is cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	return q.waitDone(ctx)
}

func (q *Queue) waitDone(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.abort()
		q.Flush()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	defer q.abort()
	for j := range q.jobs {
		q.exec(j)
	}
}

func (q *Queue) exec(j queued) {
	if j.barrier {
		j.fn(q.base)
		return
	}
	q.mu.Lock()
	if j.gen != q.gen {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(q.base)
	q.cancel = cancel
	q.inFlight = true
	q.mu.Unlock()

	j.fn(ctx)

	q.mu.Lock()
	cancel()
	q.cancel = nil
	q.inFlight = false
	q.mu.Unlock()
}

// Async returns a dispatcher that hands every request for d's devices to q.
// Sinks missing from d stay missing.
func Async(d *Dispatcher, q *Queue) *Dispatcher {
	a := &Dispatcher{queue: q, logger: d.logger}
	s := &queuedSinks{q: q, next: d}
	if d.Speaker != nil {
		a.Speaker = s
	}
	if d.Sounder != nil {
		a.Sounder = s
	}
	if d.Haptics != nil {
		a.Haptics = s
	}
	if d.Lights != nil {
		a.Lights = s
	}
	if d.Slides != nil {
		a.Slides = s
	}
	return a
}

// queuedSinks forwards each call to the wrapped dispatcher's devices from
// the queue goroutine. Failures are logged there.
type queuedSinks struct {
	q    *Queue
	next *Dispatcher
}

func (s *queuedSinks) submit(name string, call func(ctx context.Context) error) error {
	return s.q.Submit(name, func(ctx context.Context) {
		if err := call(ctx); err != nil && ctx.Err() == nil {
			s.next.logger.Warn(name+" failed", "err", err)
		}
	})
}

func (s *queuedSinks) Speak(_ context.Context, text string) error {
	return s.submit("speech", func(ctx context.Context) error {
		return s.next.Speaker.Speak(ctx, text)
	})
}

func (s *queuedSinks) PlaySound(_ context.Context, id string) error {
	return s.submit("sound", func(ctx context.Context) error {
		return s.next.Sounder.PlaySound(ctx, id)
	})
}

func (s *queuedSinks) Trigger(_ context.Context, p HapticPattern) error {
	return s.submit("haptic", func(ctx context.Context) error {
		return s.next.Haptics.Trigger(ctx, p)
	})
}

func (s *queuedSinks) SetColor(_ context.Context, c Color) error {
	return s.submit("light", func(ctx context.Context) error {
		return s.next.Lights.SetColor(ctx, c)
	})
}

func (s *queuedSinks) SetPattern(_ context.Context, name string) error {
	return s.submit("light pattern", func(ctx context.Context) error {
		return s.next.Lights.SetPattern(ctx, name)
	})
}

func (s *queuedSinks) Slide(_ context.Context, action SlideAction) error {
	return s.submit("slide", func(ctx context.Context) error {
		return s.next.Slides.Slide(ctx, action)
	})
}

// LogSpeaker writes utterances to a logger. It stands in for a voice when
// no synthesis backend is attached.
type LogSpeaker struct {
	Logger *slog.Logger
}

// Speak logs text at info level.
func (l LogSpeaker) Speak(_ context.Context, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = log.Component("voice")
	}
	logger.Info("speak", "text", text)
	return nil
}
