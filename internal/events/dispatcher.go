package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grana-app/grana_backend/internal/core/domain"
)

// Handler processes one kind of domain event. Implementations declare the
// event types they consume; there is no runtime type probing beyond the
// dispatch table lookup.
type Handler interface {
	// Name identifies the handler in logs and outcomes.
	Name() string
	// EventTypes lists the variants this handler consumes.
	EventTypes() []domain.EventType
	// Handle processes the event. Errors are recorded per handler and never
	// affect sibling handlers or the dispatching caller.
	Handle(ctx context.Context, event domain.DomainEvent) error
}

// Outcome records the result of one handler invocation.
type Outcome struct {
	Handler string
	Err     error
}

// EventOutcomes groups the outcomes of one dispatched event.
type EventOutcomes struct {
	EventID  string
	Outcomes []Outcome
}

// Dispatcher fans one domain event out to every registered handler for its
// type. The dispatch table is keyed by the closed set of event variants, so
// registration of a handler for an unknown type is an error rather than a
// silent fallback. Dispatchers are explicitly constructed; there is no
// process-global instance.
type Dispatcher struct {
	mu     sync.RWMutex
	table  map[domain.EventType][]Handler
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with an exhaustive, empty dispatch table.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		table:  make(map[domain.EventType][]Handler, len(domain.AllEventTypes())),
		logger: logger,
	}
	for _, t := range domain.AllEventTypes() {
		d.table[t] = nil
	}
	return d
}

// Register adds a handler for every event type it declares. Declaring a type
// outside the known variants fails.
func (d *Dispatcher) Register(h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range h.EventTypes() {
		if _, ok := d.table[t]; !ok {
			return fmt.Errorf("unknown event type %q declared by handler %s", t, h.Name())
		}
	}
	for _, t := range h.EventTypes() {
		d.table[t] = append(d.table[t], h)
	}
	return nil
}

// Dispatch invokes all handlers registered for the event's type concurrently
// and waits until every one has settled. A failing or panicking handler is
// recorded in its outcome and never prevents siblings from running; dispatch
// itself never fails. No matching handler is a logged no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.DomainEvent) []Outcome {
	d.mu.RLock()
	handlers := make([]Handler, len(d.table[event.EventType()]))
	copy(handlers, d.table[event.EventType()])
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug("no handlers registered for event",
			slog.String("event_type", string(event.EventType())),
			slog.String("event_id", event.EventID()))
		return nil
	}

	outcomes := make([]Outcome, len(handlers))
	var wg sync.WaitGroup
	for i, h := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			outcomes[i] = Outcome{Handler: h.Name(), Err: d.invoke(ctx, h, event)}
		}(i, h)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			d.logger.Error("event handler failed",
				slog.String("handler", o.Handler),
				slog.String("event_type", string(event.EventType())),
				slog.String("event_id", event.EventID()),
				slog.String("error", o.Err.Error()))
		}
	}
	return outcomes
}

// DispatchBatch dispatches events independently and concurrently, resolving
// once every individual dispatch has settled. Outcomes are returned in input
// order.
func (d *Dispatcher) DispatchBatch(ctx context.Context, events []domain.DomainEvent) []EventOutcomes {
	results := make([]EventOutcomes, len(events))
	var wg sync.WaitGroup
	for i, e := range events {
		wg.Add(1)
		go func(i int, e domain.DomainEvent) {
			defer wg.Done()
			results[i] = EventOutcomes{EventID: e.EventID(), Outcomes: d.Dispatch(ctx, e)}
		}(i, e)
	}
	wg.Wait()
	return results
}

// invoke runs a single handler, converting a panic into an error so one
// handler can never take down its siblings.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, event domain.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), r)
		}
	}()
	return h.Handle(ctx, event)
}

// Clear removes every registered handler. Used for test isolation.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range d.table {
		d.table[t] = nil
	}
}

// RegisteredHandlers reports handler names per event type.
func (d *Dispatcher) RegisteredHandlers() map[domain.EventType][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[domain.EventType][]string, len(d.table))
	for t, hs := range d.table {
		names := make([]string, len(hs))
		for i, h := range hs {
			names[i] = h.Name()
		}
		out[t] = names
	}
	return out
}
