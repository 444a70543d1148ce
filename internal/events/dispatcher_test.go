package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (h *recordingHandler) Name() string { return "recording" }

func (h *recordingHandler) Handle(ctx context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	if h.fail {
		return errors.New("handler boom")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestDispatcherDeliversToAllHandlers(t *testing.T) {
	first := &recordingHandler{}
	second := &recordingHandler{fail: true}
	third := &recordingHandler{}

	d := NewDispatcher(zap.NewNop(), []Handler{first, second, third})
	d.Start()

	d.Publish(Event{Type: TypePaymentSettled, ReferenceID: "stripe:pi_1"})
	d.Publish(Event{Type: TypePaymentFailed, ReferenceID: "stripe:pi_2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop dispatcher: %v", err)
	}

	for _, h := range []*recordingHandler{first, second, third} {
		if h.count() != 2 {
			t.Fatalf("expected 2 events, got %d", h.count())
		}
	}
	// A failing handler must not block the handlers after it.
	if third.events[0].ReferenceID != "stripe:pi_1" {
		t.Fatalf("unexpected delivery order: %+v", third.events)
	}
}

func TestDispatcherStopDrainsBuffer(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(zap.NewNop(), []Handler{h})

	// Events published before the worker starts sit in the buffer.
	for i := 0; i < 10; i++ {
		d.Publish(Event{Type: TypeCreditsConsumed})
	}
	d.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop dispatcher: %v", err)
	}
	if h.count() != 10 {
		t.Fatalf("expected buffered events drained, got %d", h.count())
	}
}

func TestDispatcherSetsOccurredAt(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(zap.NewNop(), []Handler{h})
	d.Start()

	d.Publish(Event{Type: TypePaymentSettled})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop dispatcher: %v", err)
	}
	if h.count() != 1 {
		t.Fatalf("expected 1 event, got %d", h.count())
	}
	if h.events[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be stamped")
	}
}
