package events

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const defaultBuffer = 256

// Handler consumes one event. Handlers must tolerate redelivery: the worker
// does not deduplicate.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}

// Dispatcher fans events out to every registered handler from a single
// background goroutine. Publish is non-blocking; when the buffer is full the
// event is dropped with a warning rather than stalling a payment commit.
type Dispatcher struct {
	log      *zap.Logger
	handlers []Handler
	queue    chan Event

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewDispatcher(log *zap.Logger, handlers []Handler) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("events.dispatcher"),
		handlers: lo.Filter(handlers, func(h Handler, _ int) bool { return h != nil }),
		queue:    make(chan Event, defaultBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn("event buffer full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("reference_id", event.ReferenceID),
		)
	}
}

func (d *Dispatcher) Start() {
	go d.run()
}

// Stop drains whatever is already buffered, then returns.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.once.Do(func() { close(d.stop) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, handler := range d.handlers {
		if err := handler.Handle(ctx, event); err != nil {
			d.log.Warn("event handler failed",
				zap.String("handler", handler.Name()),
				zap.String("type", string(event.Type)),
				zap.String("reference_id", event.ReferenceID),
				zap.Error(err),
			)
		}
	}
}
