package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// AnyType subscribes a handler to every transition event type.
const AnyType event.Type = "*"

// ErrClosed is returned when dispatching through a closed dispatcher.
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher fans transition events out to sinks.
//
// Handlers subscribed to a concrete type run before wildcard handlers.
// Async delivery keeps the emit order of events that share an expense;
// different expenses are delivered in parallel.
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a named handler; AnyType matches every event
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll is SubscribeNamed(AnyType, name, handler)
	SubscribeAll(name string, handler Handler)

	// Unsubscribe removes a handler by name; AnyType removes a wildcard handler
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs the matching handlers in order and stops at the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync queues the event on its expense's lane.
	// Handlers outlive the caller's context cancellation but keep its values.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns the handlers an event of this type would reach
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close stops accepting events and drains every lane
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	byType   map[event.Type][]HandlerInfo
	wildcard []HandlerInfo
	logger   Logger

	// lanes holds one delivery queue per expense with undelivered events.
	laneMu sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

type lane struct {
	pending []delivery
}

type delivery struct {
	ctx      context.Context
	evt      *event.Event
	handlers []HandlerInfo
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		byType: make(map[event.Type][]HandlerInfo),
		lanes:  make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.RLock()
	n := len(d.byType[eventType])
	if eventType == AnyType {
		n = len(d.wildcard)
	}
	d.mu.RUnlock()
	d.SubscribeNamed(eventType, fmt.Sprintf("handler-%d", n), handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	info := HandlerInfo{Name: name, EventType: eventType, Handler: handler}

	d.mu.Lock()
	if eventType == AnyType {
		d.wildcard = append(d.wildcard, info)
	} else {
		d.byType[eventType] = append(d.byType[eventType], info)
	}
	d.mu.Unlock()

	d.logInfo("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.SubscribeNamed(AnyType, name, handler)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	if eventType == AnyType {
		d.wildcard = without(d.wildcard, name)
	} else {
		d.byType[eventType] = without(d.byType[eventType], name)
	}
	d.mu.Unlock()

	d.logInfo("Handler unregistered", "event_type", eventType, "handler_name", name)
}

func without(handlers []HandlerInfo, name string) []HandlerInfo {
	kept := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	return kept
}

// route returns the handlers for an event type: typed first, then wildcard.
func (d *eventDispatcher) route(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	typed := d.byType[eventType]
	out := make([]HandlerInfo, 0, len(typed)+len(d.wildcard))
	out = append(out, typed...)
	return append(out, d.wildcard...)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.laneMu.Lock()
	closed := d.closed
	d.laneMu.Unlock()
	if closed {
		return ErrClosed
	}

	handlers := d.route(evt.Type)
	d.logInfo("Dispatching event", append(eventFields(evt), "handler_count", len(handlers))...)

	for _, h := range handlers {
		if err := d.deliver(ctx, evt, h); err != nil {
			return fmt.Errorf("handler %s failed: %w", h.Name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	job := delivery{ctx: context.WithoutCancel(ctx), evt: evt, handlers: d.route(evt.Type)}

	d.laneMu.Lock()
	if d.closed {
		d.laneMu.Unlock()
		d.logError("Cannot dispatch async event, dispatcher is closed", eventFields(evt)...)
		return
	}
	l, busy := d.lanes[evt.ExpenseID]
	if !busy {
		l = &lane{}
		d.lanes[evt.ExpenseID] = l
		d.wg.Add(1)
	}
	l.pending = append(l.pending, job)
	queued := len(l.pending)
	d.laneMu.Unlock()

	d.logInfo("Event queued", append(eventFields(evt), "handler_count", len(job.handlers), "queued", queued)...)

	if !busy {
		go d.drain(evt.ExpenseID, l)
	}
}

// drain delivers a lane's events one at a time and retires the lane once empty.
func (d *eventDispatcher) drain(key string, l *lane) {
	defer d.wg.Done()
	for {
		d.laneMu.Lock()
		if len(l.pending) == 0 {
			delete(d.lanes, key)
			d.laneMu.Unlock()
			return
		}
		job := l.pending[0]
		l.pending = l.pending[1:]
		d.laneMu.Unlock()

		for _, h := range job.handlers {
			// A failed sink does not hold back the others.
			_ = d.deliver(job.ctx, job.evt, h)
		}
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	var handlers []HandlerInfo
	if eventType == AnyType {
		d.mu.RLock()
		handlers = append(handlers, d.wildcard...)
		d.mu.RUnlock()
	} else {
		handlers = d.route(eventType)
	}

	out := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		out[i] = HandlerInfo{Name: h.Name, EventType: h.EventType, Description: h.Description}
	}
	return out
}

func (d *eventDispatcher) Close() error {
	d.laneMu.Lock()
	if d.closed {
		d.laneMu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	open := len(d.lanes)
	d.laneMu.Unlock()

	d.logInfo("Closing dispatcher, draining lanes", "lanes", open)
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

// deliver runs one handler, turning a panic into an error. Failures are logged here.
func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event, h HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.logError("Handler panic recovered", append(eventFields(evt), "handler_name", h.Name, "panic", r)...)
			return
		}
		if err != nil {
			d.logError("Handler error", append(eventFields(evt), "handler_name", h.Name, "error", err)...)
		}
	}()
	return h.Handler(ctx, evt)
}

func eventFields(evt *event.Event) []interface{} {
	return []interface{}{
		"event_type", evt.Type,
		"event_id", evt.ID,
		"expense_id", evt.ExpenseID,
		"step", evt.Step,
		"actor", evt.Actor,
		"correlation_id", evt.CorrelationID,
	}
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
