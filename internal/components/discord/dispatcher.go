package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/appctx"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
)

// Handler processes one event. Handle is never called concurrently.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// Dispatcher queues gateway events and hands them to a Handler one at a
// time, each under its own timeout.
type Dispatcher struct {
	handler Handler
	timeout time.Duration
	queue   chan Event
	logger  *slog.Logger
	metrics *metrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher creates a Dispatcher. queueSize <= 0 means 64; timeout
// <= 0 means 30s.
func NewDispatcher(h Handler, queueSize int, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		handler: h,
		timeout: timeout,
		queue:   make(chan Event, queueSize),
		logger:  logutil.NoopIfNil(logger),
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start launches the worker. Cancelling ctx or calling Stop ends it.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go d.run(ctx)
}

// Enqueue queues ev without blocking. When the queue is full the event
// is dropped and false is returned.
func (d *Dispatcher) Enqueue(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.metrics.ObserveDroppedEvent()
		d.logger.Warn("event queue full, dropping event", "kind", ev.Kind())
		return false
	}
}

// Stop cancels the worker and waits for the in-flight event to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
			<-d.done
		}
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(parent context.Context, ev Event) {
	eventID := uuid.NewString()
	logger := d.logger.With("event_id", eventID, "kind", ev.Kind())

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	ctx = appctx.WithEventID(ctx, eventID)
	ctx = appctx.WithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "panic", r)
		}
	}()

	start := time.Now()
	d.handler.Handle(ctx, ev)
	if ctx.Err() == context.DeadlineExceeded {
		logger.Warn("event handling timed out", "timeout", d.timeout.String())
	}
	logger.Debug("event handled", "duration_ms", time.Since(start).Milliseconds())
}
