package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event represents an incoming command from the command line, the watch
// loop or a map client.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time

	// set by Call; buffered handlers report their result on it
	reply chan outcome
}

type outcome struct {
	result any
	err    error
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(context.Context, Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// buffered handlers run on this context, not the caller's
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan Event
	closed  bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of commands in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for cmd, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("command", cmd)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total commands processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total commands dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(ctx, e)
}

// Call routes an event like Dispatch, but for buffered handlers it waits
// until the queued event has run and returns the handler's own result.
func (d *Dispatcher) Call(ctx context.Context, e Event) (any, error) {
	e.reply = make(chan outcome, 1)
	return d.Dispatch(ctx, e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// Close cancels running buffered handlers, drains the queues and waits for
// the workers to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.stopAccepting()
	d.wg.Wait()
}

// Shutdown stops accepting commands and waits for queued ones to finish.
// If ctx ends first, running handlers are cancelled and ctx's error is
// returned once the workers exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopAccepting()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) stopAccepting() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			result, err := h(d.ctx, e)
			d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			if e.reply != nil {
				e.reply <- outcome{result: result, err: err}
			} else if err != nil {
				d.logger.Error("queued command failed", "command", command, "error", err)
			}
		}
	}()

	enqueue := func(ctx context.Context, e Event) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return ErrClosed
		}

		if blocking {
			select {
			case buffer <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-d.ctx.Done():
				return ErrClosed
			}
		}

		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			return fmt.Errorf("queue full: %s", command)
		}
	}

	return func(ctx context.Context, e Event) (any, error) {
		if err := enqueue(ctx, e); err != nil {
			return nil, err
		}
		if e.reply == nil {
			return "queued", nil
		}
		select {
		case o := <-e.reply:
			return o.result, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", command, "args", len(e.Args))

		result, err := h(ctx, e)

		if err != nil {
			d.logger.Error("command failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
