package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// HistoryLimit bounds the in-memory event history ring. Oldest entries
	// are evicted once the capacity is exceeded.
	HistoryLimit int
	// DeadLetterLimit bounds the dead-letter queue the same way.
	DeadLetterLimit int
	// HandlerTimeout bounds every subscriber invocation. A handler exceeding
	// it is cancelled, excluded from the result list and dead-lettered.
	HandlerTimeout time.Duration
	// WorkerPoolSize bounds concurrent execution of blocking handlers.
	WorkerPoolSize int64
	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// DeadLetter records one failed subscriber invocation: the event, the reason
// it failed and the subscription that failed it.
type DeadLetter struct {
	Event        core.Event `json:"event"`
	Reason       string     `json:"reason"`
	Subscription string     `json:"subscription"`
	Time         time.Time  `json:"time"`
}

// Stats is a point-in-time snapshot of bus activity.
type Stats struct {
	Emitted       uint64
	Delivered     uint64
	Failed        uint64
	Dropped       uint64
	Subscriptions int
	HistorySize   int
	DeadLetters   int
	Running       bool
}

// Bus is a typed publish/subscribe dispatcher with priority-ordered
// subscribers, an ordered middleware pipeline, bounded history and a
// dead-letter queue. All public methods are safe for concurrent use.
//
// The registry, history ring and dead-letter list are mutated behind a single
// lock; the lock is never held across a handler invocation.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]Subscription // event type -> sorted by priority desc, seq asc
	middleware  []Middleware
	history     []core.Event
	deadLetters []DeadLetter
	seq         uint64
	running     bool

	emitted   uint64
	delivered uint64
	failed    uint64
	dropped   uint64

	historyLimit    int
	deadLetterLimit int
	handlerTimeout  time.Duration

	pool   *semaphore.Weighted
	wg     sync.WaitGroup
	logger logging.Logger
}

// New constructs a running Bus with optional overrides.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		HistoryLimit:    1000,
		DeadLetterLimit: 100,
		HandlerTimeout:  5 * time.Second,
		WorkerPoolSize:  8,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{
		subs:            make(map[string][]Subscription),
		history:         []core.Event{},
		deadLetters:     []DeadLetter{},
		running:         true,
		historyLimit:    opts.HistoryLimit,
		deadLetterLimit: opts.DeadLetterLimit,
		handlerTimeout:  opts.HandlerTimeout,
		pool:            semaphore.NewWeighted(opts.WorkerPoolSize),
		logger:          opts.Logger,
	}
}

// Subscribe registers a handler for one event type (or EventWildcard for
// all types) and returns an opaque id for later removal. The subscriber list
// for that type is re-sorted by descending priority, ties by registration
// order.
func (b *Bus) Subscribe(eventType string, h Handler, optFns ...SubscribeOption) string {
	sub := Subscription{
		ID:        core.NewID(),
		EventType: eventType,
		handler:   h,
	}

	for _, fn := range optFns {
		fn(&sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub.seq = b.seq

	list := append(b.subs[eventType], sub)
	sortSubscriptions(list)
	b.subs[eventType] = list

	b.logger.Debug("bus subscription added id=%s type=%s priority=%d", sub.ID, eventType, sub.Priority)

	return sub.ID
}

// Unsubscribe removes a subscription by id, reporting whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(id)
}

func (b *Bus) removeLocked(id string) bool {
	for eventType, list := range b.subs {
		for i, sub := range list {
			if sub.ID == id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Use appends a transform/veto stage to the middleware pipeline run before
// every dispatch.
func (b *Bus) Use(m Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, m)
}

// Emit runs the middleware pipeline and, if the event survives, records it
// into history and dispatches it to all subscribers of its type plus wildcard
// subscribers, in descending priority order, honoring each subscriber's
// filter. Each handler is bounded by the configured per-handler timeout; a
// handler that times out, returns an error or panics is excluded from the
// returned result list and recorded in the dead-letter queue. Failure of one
// handler never prevents others from running.
//
// Returns the ordered list of successful handler results. On a stopped bus
// Emit is a no-op that logs a warning.
func (b *Bus) Emit(ctx context.Context, ev core.Event) []any {
	subs, ok := b.prepare(&ev)
	if !ok {
		return nil
	}

	start := time.Now()
	results := make([]any, 0, len(subs))
	failed := 0

	for _, sub := range subs {
		if sub.Filter != nil && !sub.Filter(ev) {
			continue
		}

		res, err := b.invoke(ctx, sub, ev)
		if err != nil {
			failed++
			b.deadLetter(ev, sub, err)
		} else {
			results = append(results, res)
			b.mu.Lock()
			b.delivered++
			b.mu.Unlock()
		}

		if sub.Once {
			b.mu.Lock()
			b.removeLocked(sub.ID)
			b.mu.Unlock()
		}
	}

	b.logger.Debug("bus dispatched event_id=%s type=%s handlers=%d failed=%d duration=%s",
		ev.ID, ev.Type, len(subs), failed, time.Since(start))

	return results
}

// EmitAsync is the fire-and-forget mode used for non-critical notifications:
// matched handlers are scheduled for independent execution and the call
// returns immediately. Handler failures are still recorded in the dead-letter
// queue for observability parity with Emit.
func (b *Bus) EmitAsync(ev core.Event) {
	subs, ok := b.prepare(&ev)
	if !ok {
		return
	}

	for _, sub := range subs {
		if sub.Filter != nil && !sub.Filter(ev) {
			continue
		}

		if sub.Once {
			b.mu.Lock()
			b.removeLocked(sub.ID)
			b.mu.Unlock()
		}

		b.wg.Add(1)
		go func(sub Subscription) {
			defer b.wg.Done()

			if _, err := b.invoke(context.Background(), sub, ev); err != nil {
				b.deadLetter(ev, sub, err)
			} else {
				b.mu.Lock()
				b.delivered++
				b.mu.Unlock()
			}
		}(sub)
	}
}

// prepare runs the middleware pipeline, records the event into the bounded
// history and snapshots the matched subscriptions. It reports false when the
// bus is stopped or a middleware dropped the event.
func (b *Bus) prepare(ev *core.Event) ([]Subscription, bool) {
	b.mu.RLock()
	running := b.running
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	if !running {
		b.logger.Warn("bus is stopped, dropping event type=%s id=%s", ev.Type, ev.ID)
		return nil, false
	}

	// Ordered, imperative pipeline: each stage forwards or drops.
	current := *ev
	for _, m := range middleware {
		next, forward := m(current)
		if !forward {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
			b.logger.Debug("bus middleware dropped event type=%s id=%s", current.Type, current.ID)
			return nil, false
		}
		current = next
	}
	*ev = current

	b.mu.Lock()
	defer b.mu.Unlock()

	b.emitted++
	b.history = append(b.history, current)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}

	matched := make([]Subscription, 0, len(b.subs[current.Type])+len(b.subs[core.EventWildcard]))
	matched = append(matched, b.subs[current.Type]...)
	if current.Type != core.EventWildcard {
		matched = append(matched, b.subs[core.EventWildcard]...)
	}
	sortSubscriptions(matched)

	return matched, true
}

// invoke runs one subscriber under the per-handler timeout, recovering panics
// and adapting blocking handlers onto the bounded worker pool.
func (b *Bus) invoke(ctx context.Context, sub Subscription, ev core.Event) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	if sub.Blocking {
		if err := b.pool.Acquire(cctx, 1); err != nil {
			return nil, fmt.Errorf("%w: acquiring worker: %v", ErrHandlerTimeout, err)
		}
	}

	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		if sub.Blocking {
			defer b.pool.Release(1)
		}
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()

		res, err := sub.handler.Invoke(cctx, ev)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-cctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrHandlerTimeout, b.handlerTimeout)
	case out := <-done:
		return out.result, out.err
	}
}

func (b *Bus) deadLetter(ev core.Event, sub Subscription, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed++
	b.deadLetters = append(b.deadLetters, DeadLetter{
		Event:        ev,
		Reason:       err.Error(),
		Subscription: sub.ID,
		Time:         time.Now().UTC(),
	})
	if len(b.deadLetters) > b.deadLetterLimit {
		b.deadLetters = b.deadLetters[len(b.deadLetters)-b.deadLetterLimit:]
	}

	b.logger.Warn("bus handler failed subscription=%s type=%s reason=%v", sub.ID, ev.Type, err)
}

// History returns retained events, oldest first, optionally filtered. A
// non-positive limit returns all retained entries; otherwise the newest limit
// entries are returned.
func (b *Bus) History(filter Filter, limit int) []core.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.history
	if filter != nil {
		events = lo.Filter(events, func(ev core.Event, _ int) bool { return filter(ev) })
	} else {
		events = append([]core.Event{}, events...)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	return events
}

// DeadLetters returns the newest limit dead letters (all when limit <= 0).
func (b *Bus) DeadLetters(limit int) []DeadLetter {
	b.mu.RLock()
	defer b.mu.RUnlock()

	letters := append([]DeadLetter{}, b.deadLetters...)
	if limit > 0 && len(letters) > limit {
		letters = letters[len(letters)-limit:]
	}

	return letters
}

// ClearDeadLetters discards all recorded dead letters.
func (b *Bus) ClearDeadLetters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = []DeadLetter{}
}

// Stats returns a snapshot of bus activity.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		Emitted:       b.emitted,
		Delivered:     b.delivered,
		Failed:        b.failed,
		Dropped:       b.dropped,
		Subscriptions: lo.Sum(lo.Map(lo.Values(b.subs), func(list []Subscription, _ int) int { return len(list) })),
		HistorySize:   len(b.history),
		DeadLetters:   len(b.deadLetters),
		Running:       b.running,
	}
}

// Stop drains in-flight fire-and-forget handlers and marks the bus stopped.
// Subsequent emissions are no-ops that log a warning until Start is called.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()
}

// Start re-arms a stopped bus.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
}

func sortSubscriptions(list []Subscription) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		return list[i].seq < list[j].seq
	})
}
