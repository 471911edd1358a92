package bus

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
)

// Handler is the single invocation contract for subscribers. Implementations
// that suspend (awaiting I/O, timers, downstream calls) are invoked and
// awaited in place; blocking implementations should be registered with
// WithBlocking so the bus runs them on its bounded worker pool.
//
// The supplied context carries the per-handler timeout; implementations must
// respect its cancellation.
type Handler interface {
	Invoke(ctx context.Context, ev core.Event) (any, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev core.Event) (any, error)

// Invoke calls the wrapped function.
func (f HandlerFunc) Invoke(ctx context.Context, ev core.Event) (any, error) { return f(ctx, ev) }

// Filter decides whether a subscription receives a particular event.
type Filter func(ev core.Event) bool

// Subscription is a registered handler for one event type. Subscriptions for
// a given type are kept sorted by descending priority, ties broken by
// registration order.
type Subscription struct {
	ID        string
	EventType string
	Priority  int
	Once      bool
	Blocking  bool
	Filter    Filter

	handler Handler
	seq     uint64
}

// SubscribeOption customizes a subscription at registration time.
type SubscribeOption func(s *Subscription)

// WithPriority sets the dispatch priority. Higher priorities are invoked
// first on awaited emission.
func WithPriority(p int) SubscribeOption {
	return func(s *Subscription) { s.Priority = p }
}

// WithFilter attaches a per-subscription filter; events it rejects are
// silently skipped for this subscriber.
func WithFilter(f Filter) SubscribeOption {
	return func(s *Subscription) { s.Filter = f }
}

// WithOnce removes the subscription after its first successful or failed
// invocation.
func WithOnce() SubscribeOption {
	return func(s *Subscription) { s.Once = true }
}

// WithBlocking marks the handler as blocking (non-suspending). The bus
// dispatches it on the bounded worker pool so it cannot stall the emitter.
func WithBlocking() SubscribeOption {
	return func(s *Subscription) { s.Blocking = true }
}
