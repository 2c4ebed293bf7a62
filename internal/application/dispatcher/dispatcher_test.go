package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu      sync.Mutex
	infos   []string
	errors  []string
	entries []map[string]interface{}
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)

	entry := map[string]interface{}{"msg": msg}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			entry[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	m.entries = append(m.entries, entry)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)

	entry := map[string]interface{}{"msg": msg, "level": "error"}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			entry[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	m.entries = append(m.entries, entry)
}

func (m *mockLogger) InfoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.infos)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func TestNewDispatcher(t *testing.T) {
	t.Run("creates dispatcher without logger", func(t *testing.T) {
		d := NewDispatcher()
		if d == nil {
			t.Fatal("expected non-nil dispatcher")
		}
	})

	t.Run("creates dispatcher with logger", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		if d == nil {
			t.Fatal("expected non-nil dispatcher")
		}
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes handler with auto-generated name", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		handler := func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		}

		d.Subscribe(event.TypeExpenseSubmitted, handler)

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if !called {
			t.Error("expected handler to be called")
		}
	})

	t.Run("subscribes multiple handlers to same event type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}
	})
}

func TestSubscribeNamed(t *testing.T) {
	t.Run("subscribes handler with custom name", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		handler := func(ctx context.Context, evt *event.Event) error {
			return nil
		}

		d.SubscribeNamed(event.TypeExpenseSubmitted, "test-handler", handler)

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})

	t.Run("lists handlers by name", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-1", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-2", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.TypeExpenseSubmitted)
		if len(handlers) != 2 {
			t.Fatalf("expected 2 handlers, got %d", len(handlers))
		}

		names := map[string]bool{}
		for _, h := range handlers {
			names[h.Name] = true
		}

		if !names["handler-1"] || !names["handler-2"] {
			t.Error("expected both handlers to be listed")
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	t.Run("removes handler by name", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-1", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		d.Unsubscribe(event.TypeExpenseSubmitted, "handler-1")

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if called {
			t.Error("expected handler not to be called after unsubscribe")
		}
	})

	t.Run("removes only specified handler", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-1", func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-2", func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		d.Unsubscribe(event.TypeExpenseSubmitted, "handler-1")

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if called1 {
			t.Error("expected handler-1 not to be called")
		}
		if !called2 {
			t.Error("expected handler-2 to be called")
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("dispatches to all handlers synchronously", func(t *testing.T) {
		d := NewDispatcher()
		order := []int{}
		var mu sync.Mutex

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			order = append(order, 2)
			mu.Unlock()
			return nil
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		err := d.Dispatch(context.Background(), evt)

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		d := NewDispatcher()

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			return ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		err := d.Dispatch(ctx, evt)

		if err == nil {
			t.Fatal("expected error from cancelled context")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		err := d.Dispatch(context.Background(), evt)

		if err == nil {
			t.Fatal("expected error from panic recovery")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("returns error when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		err := d.Dispatch(context.Background(), evt)

		if err == nil {
			t.Fatal("expected error when dispatching to closed dispatcher")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("dispatches to handlers asynchronously", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		d.DispatchAsync(context.Background(), evt)

		// Should return immediately without waiting
		if called.Load() > 0 {
			t.Error("expected handlers not to have completed yet")
		}

		// Wait for handlers to complete
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if called.Load() != 2 {
			t.Errorf("expected 2 handlers to be called, got %d", called.Load())
		}
	})

	t.Run("does not block on handler errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		d.DispatchAsync(context.Background(), evt)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		// Both handlers should have been called despite error
		if called.Load() != 1 {
			t.Errorf("expected second handler to be called, got %d calls", called.Load())
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error to be logged")
		}
	})

	t.Run("recovers from handler panic asynchronously", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			panic("async panic")
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		d.DispatchAsync(context.Background(), evt)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("does not dispatch when dispatcher is closed", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		d.DispatchAsync(context.Background(), evt)

		// Give time for any goroutines to potentially start
		time.Sleep(50 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected handler not to be called after close")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error log for dispatching to closed dispatcher")
		}
	})
}

func TestListHandlers(t *testing.T) {
	t.Run("returns empty list for unregistered event type", func(t *testing.T) {
		d := NewDispatcher()
		handlers := d.ListHandlers(event.TypeExpenseSubmitted)
		if len(handlers) != 0 {
			t.Errorf("expected 0 handlers, got %d", len(handlers))
		}
	})

	t.Run("returns handler info without exposing function", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.TypeExpenseSubmitted, "test-handler", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.TypeExpenseSubmitted)
		if len(handlers) != 1 {
			t.Fatalf("expected 1 handler, got %d", len(handlers))
		}

		h := handlers[0]
		if h.Name != "test-handler" {
			t.Errorf("expected name 'test-handler', got '%s'", h.Name)
		}
		if h.EventType != event.TypeExpenseSubmitted {
			t.Errorf("expected event type %s, got %s", event.TypeExpenseSubmitted, h.EventType)
		}
		if h.Handler != nil {
			t.Error("expected handler function not to be exposed")
		}
	})

	t.Run("returns all handlers for event type", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-1", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.TypeExpenseSubmitted, "handler-2", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.TypeExpenseApproved, "other-handler", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.TypeExpenseSubmitted)
		if len(handlers) != 2 {
			t.Fatalf("expected 2 handlers for TypeExpenseSubmitted, got %d", len(handlers))
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(50 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		d.DispatchAsync(context.Background(), evt)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()

		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}

		err := d.Close()
		if err == nil {
			t.Fatal("expected error on second close")
		}
	})

	t.Run("prevents new async dispatches after close", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		d.DispatchAsync(context.Background(), evt)

		time.Sleep(50 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected no handlers to be called after close")
		}
	})
}

func TestConcurrency(t *testing.T) {
	t.Run("handles concurrent subscriptions", func(t *testing.T) {
		d := NewDispatcher()
		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				d.SubscribeNamed(event.TypeExpenseSubmitted, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
					return nil
				})
			}(i)
		}

		wg.Wait()

		handlers := d.ListHandlers(event.TypeExpenseSubmitted)
		if len(handlers) != 10 {
			t.Errorf("expected 10 handlers, got %d", len(handlers))
		}
	})

	t.Run("handles concurrent dispatch", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				evt := event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
				d.Dispatch(context.Background(), evt)
			}()
		}

		wg.Wait()

		if called.Load() != 10 {
			t.Errorf("expected 10 handler calls, got %d", called.Load())
		}
	})
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var seen sync.Map

	d.SubscribeAll("audit-sink", func(ctx context.Context, evt *event.Event) error {
		seen.Store(evt.Type, true)
		return nil
	})

	for _, eventType := range event.AllTypes {
		handlers := d.ListHandlers(eventType)
		if len(handlers) != 1 || handlers[0].Name != "audit-sink" {
			t.Fatalf("expected audit-sink on %s, got %+v", eventType, handlers)
		}

		evt := event.NewTransition(eventType, "exp-1", "PendingApproval", "Approved", "mgr-1", 1)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
	}

	for _, eventType := range event.AllTypes {
		if _, ok := seen.Load(eventType); !ok {
			t.Errorf("handler not invoked for %s", eventType)
		}
	}
}

type requestKey struct{}

func TestDispatchAsyncDetachesCancellation(t *testing.T) {
	d := NewDispatcher()
	release := make(chan struct{})
	result := make(chan error, 1)

	d.Subscribe(event.TypeExpenseApproved, func(ctx context.Context, evt *event.Event) error {
		<-release
		if ctx.Value(requestKey{}) != "req-1" {
			result <- errors.New("request values were dropped")
			return nil
		}
		result <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), requestKey{}, "req-1"))
	d.DispatchAsync(ctx, event.NewTransition(event.TypeExpenseApproved, "exp-1", "PendingApproval", "Approved", "mgr-1", 1))
	cancel()
	close(release)

	if err := <-result; err != nil {
		t.Errorf("async handler saw %v after caller cancelled", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestWildcardHandlersRunAfterTyped(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeAll("audit", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "audit")
		return nil
	})
	d.SubscribeNamed(event.TypeExpenseApproved, "notify", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "notify")
		return nil
	})

	evt := event.NewTransition(event.TypeExpenseApproved, "exp-1", "PendingApproval", "Approved", "mgr-1", 1)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(order) != 2 || order[0] != "notify" || order[1] != "audit" {
		t.Errorf("expected [notify audit], got %v", order)
	}

	if got := d.ListHandlers(AnyType); len(got) != 1 || got[0].Name != "audit" {
		t.Errorf("expected only audit as wildcard, got %+v", got)
	}

	d.Unsubscribe(AnyType, "audit")
	if got := d.ListHandlers(event.TypeExpenseApproved); len(got) != 1 || got[0].Name != "notify" {
		t.Errorf("expected notify left after removing wildcard, got %+v", got)
	}
}

func TestDispatchAfterCloseReturnsErrClosed(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	err := d.Dispatch(context.Background(), event.NewTransition(event.TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDispatchAsyncKeepsOrderPerExpense(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	seen := map[string][]event.Type{}
	gate := make(chan struct{})

	d.SubscribeAll("recorder", func(ctx context.Context, evt *event.Event) error {
		if evt.ExpenseID == "exp-slow" && evt.Type == event.TypeExpenseSubmitted {
			<-gate
		}
		mu.Lock()
		seen[evt.ExpenseID] = append(seen[evt.ExpenseID], evt.Type)
		mu.Unlock()
		return nil
	})

	chain := []event.Type{event.TypeExpenseSubmitted, event.TypeStepAdvanced, event.TypeExpenseApproved}
	for _, typ := range chain {
		d.DispatchAsync(context.Background(), event.NewTransition(typ, "exp-slow", "", "", "mgr-1", 1))
	}
	d.DispatchAsync(context.Background(), event.NewTransition(event.TypeExpenseRejected, "exp-fast", "", "", "mgr-2", 1))

	// exp-fast is on its own lane and is not held back by exp-slow.
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(seen["exp-fast"])
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("exp-fast was blocked behind exp-slow")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(gate)
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	got := seen["exp-slow"]
	if len(got) != len(chain) {
		t.Fatalf("expected %d events for exp-slow, got %v", len(chain), got)
	}
	for i, typ := range chain {
		if got[i] != typ {
			t.Errorf("event %d: expected %s, got %s", i, typ, got[i])
		}
	}
}

func TestDispatchLogsExpenseFields(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	d.Subscribe(event.TypeStepAdvanced, func(ctx context.Context, evt *event.Event) error { return nil })

	evt := event.NewTransition(event.TypeStepAdvanced, "exp-9", "PendingApproval", "PendingApproval", "mgr-1", 2)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	for _, entry := range logger.entries {
		if entry["msg"] != "Dispatching event" {
			continue
		}
		if entry["expense_id"] != "exp-9" || entry["step"] != 2 || entry["actor"] != "mgr-1" {
			t.Errorf("missing expense fields in %v", entry)
		}
		return
	}
	t.Error("expected a Dispatching event log entry")
}
