package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/coinhunt/roomengine/internal/dispatcher"

// ErrClosed is returned by Dispatch once Close has been called.
var ErrClosed = errors.New("dispatcher closed")

// Event is a client request received on a transport session.
type Event struct {
	Type      string
	Session   string
	Args      []json.RawMessage
	Timestamp time.Time
}

// HandlerFunc handles one event. Sync handlers hand their result back to the
// transport, which replies to the session.
type HandlerFunc func(Event) (any, error)

// Logger is satisfied by logging.DispatcherLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size
// events. Dispatch then answers "queued" and the handler replies on its own.
func Buffered(size int) Option {
	return func(c *config) { c.bufferSize = size }
}

// Blocking makes Dispatch wait for queue space instead of dropping.
func Blocking() Option {
	return func(c *config) { c.blocking = true }
}

// Logged logs each event at debug level and failures at error level.
func Logged() Option {
	return func(c *config) { c.logged = true }
}

type metrics struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// Dispatcher routes session events to handlers by event type.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger
	metrics  metrics

	mu      sync.RWMutex
	buffers map[string]chan Event
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher reporting to the global otel meter.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
	}
	if err := d.initMetrics(otel.Meter(instrumentationName)); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) initMetrics(m metric.Meter) error {
	var err error
	if d.metrics.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a buffered handler queue")); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(d.observeQueues, d.metrics.queueSize); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	if d.metrics.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Buffered events handled")); err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	if d.metrics.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events dropped on a full queue")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.metrics.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Buffered events whose handler returned an error")); err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for typ, buf := range d.buffers {
		o.ObserveInt64(d.metrics.queueSize, int64(len(buf)),
			metric.WithAttributes(attribute.String("event", typ)))
	}
	return nil
}

// Register binds h to eventType. Handlers are registered before serving;
// Register must not race with Dispatch.
func (d *Dispatcher) Register(eventType string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(eventType, handler)
	}
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(eventType, cfg.bufferSize, cfg.blocking, handler)
	}
	d.handlers[eventType] = handler
}

// Dispatch hands e to its handler, stamping the receive time if unset.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event: %s", e.Type)
	}
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler reports whether eventType is registered.
func (d *Dispatcher) HasHandler(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// Close stops accepting events and waits for buffered handlers to drain
// what they already queued. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, buf := range d.buffers {
			close(buf)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) withBuffer(eventType string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)
	typeAttr := metric.WithAttributes(attribute.String("event", eventType))

	d.mu.Lock()
	d.buffers[eventType] = buffer
	d.mu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.metrics.failed.Add(context.Background(), 1, typeAttr)
			}
			d.metrics.processed.Add(context.Background(), 1, typeAttr)
		}
	}()

	// The read lock keeps Close from closing buffer mid-send.
	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		if blocking {
			buffer <- e
			return "queued", nil
		}
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.metrics.dropped.Add(context.Background(), 1, typeAttr)
			d.logger.Warn("event queue full, dropping", "event", eventType, "session", e.Session)
			return nil, fmt.Errorf("queue full: %s", eventType)
		}
	}
}

func (d *Dispatcher) withLogging(eventType string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "event", eventType, "session", e.Session, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "event", eventType, "session", e.Session, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "event", eventType, "session", e.Session, "duration", time.Since(start))
		return result, nil
	}
}
