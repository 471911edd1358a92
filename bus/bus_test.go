package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func handlerReturning(value any) Handler {
	return HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		return value, nil
	})
}

func TestBus_Emit_PriorityOrdering(t *testing.T) {
	b := New()

	b.Subscribe("task.start", handlerReturning("low"), WithPriority(1))
	b.Subscribe("task.start", handlerReturning("high"), WithPriority(10))
	b.Subscribe("task.start", handlerReturning("mid-a"), WithPriority(5))
	b.Subscribe("task.start", handlerReturning("mid-b"), WithPriority(5))

	results := b.Emit(context.Background(), core.NewEvent("task.start", "test"))

	// Descending priority, registration order breaks the tie.
	assert.Equal(t, []any{"high", "mid-a", "mid-b", "low"}, results)
}

func TestBus_Emit_WildcardReceivesAllTypes(t *testing.T) {
	b := New()

	var seen []string
	b.Subscribe(core.EventWildcard, HandlerFunc(func(_ context.Context, ev core.Event) (any, error) {
		seen = append(seen, ev.Type)
		return nil, nil
	}))

	b.Emit(context.Background(), core.NewEvent("a", "test"))
	b.Emit(context.Background(), core.NewEvent("b", "test"))

	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestBus_Emit_OnceSubscriptionFiresOnce(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe("ping", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		calls++
		return nil, nil
	}), WithOnce())

	b.Emit(context.Background(), core.NewEvent("ping", "test"))
	b.Emit(context.Background(), core.NewEvent("ping", "test"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Stats().Subscriptions)
}

func TestBus_Emit_FilterSkipsSubscriber(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe("ping", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		calls++
		return "ok", nil
	}), WithFilter(func(ev core.Event) bool { return ev.Source == "wanted" }))

	b.Emit(context.Background(), core.NewEvent("ping", "unwanted"))
	results := b.Emit(context.Background(), core.NewEvent("ping", "wanted"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []any{"ok"}, results)
}

func TestBus_Emit_HandlerErrorIsolatedAndDeadLettered(t *testing.T) {
	b := New()

	b.Subscribe("job", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		return nil, errors.New("boom")
	}), WithPriority(10))
	b.Subscribe("job", handlerReturning("survivor"))

	results := b.Emit(context.Background(), core.NewEvent("job", "test"))

	assert.Equal(t, []any{"survivor"}, results)

	letters := b.DeadLetters(0)
	require.Len(t, letters, 1)
	assert.Equal(t, "boom", letters[0].Reason)
	assert.Equal(t, "job", letters[0].Event.Type)
}

func TestBus_Emit_HandlerPanicIsolatedAndDeadLettered(t *testing.T) {
	b := New()

	b.Subscribe("job", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		panic("kaboom")
	}))
	b.Subscribe("job", handlerReturning("survivor"))

	results := b.Emit(context.Background(), core.NewEvent("job", "test"))

	assert.Equal(t, []any{"survivor"}, results)

	letters := b.DeadLetters(0)
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Reason, "kaboom")
}

func TestBus_Emit_HandlerTimeoutDeadLettered(t *testing.T) {
	b := New(func(o *Options) {
		o.HandlerTimeout = 20 * time.Millisecond
	})

	b.Subscribe("slow", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return "late", nil
	}))

	results := b.Emit(context.Background(), core.NewEvent("slow", "test"))

	assert.Empty(t, results)

	letters := b.DeadLetters(0)
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Reason, ErrHandlerTimeout.Error())
}

func TestBus_Emit_BlockingHandlerRunsOnPool(t *testing.T) {
	b := New(func(o *Options) {
		o.WorkerPoolSize = 1
	})

	b.Subscribe("crunch", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return 42, nil
	}), WithBlocking())

	results := b.Emit(context.Background(), core.NewEvent("crunch", "test"))

	assert.Equal(t, []any{42}, results)
}

func TestBus_Middleware_TransformAndDrop(t *testing.T) {
	b := New()

	b.Use(AnnotateSource("relay"))
	b.Use(DropTypes("noise"))

	var sources []string
	b.Subscribe(core.EventWildcard, HandlerFunc(func(_ context.Context, ev core.Event) (any, error) {
		sources = append(sources, ev.Source)
		return nil, nil
	}))

	b.Emit(context.Background(), core.NewEvent("signal", ""))
	b.Emit(context.Background(), core.NewEvent("noise", ""))

	assert.Equal(t, []string{"relay"}, sources)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Emitted)
	assert.Equal(t, uint64(1), stats.Dropped)

	// Dropped events never reach the history.
	assert.Len(t, b.History(nil, 0), 1)
}

func TestBus_EmitAsync_DeliversAndDeadLetters(t *testing.T) {
	b := New()

	done := make(chan struct{})
	b.Subscribe("notify", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		close(done)
		return nil, nil
	}))
	b.Subscribe("notify", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		return nil, errors.New("async failure")
	}))

	b.EmitAsync(core.NewEvent("notify", "test"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler was not invoked")
	}

	assert.Eventually(t, func() bool {
		return len(b.DeadLetters(0)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBus_StopAndStart(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe("ping", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		calls++
		return nil, nil
	}))

	b.Stop()
	assert.False(t, b.Stats().Running)

	results := b.Emit(context.Background(), core.NewEvent("ping", "test"))
	assert.Nil(t, results)
	assert.Equal(t, 0, calls)
	assert.Empty(t, b.History(nil, 0))

	b.Start()
	b.Emit(context.Background(), core.NewEvent("ping", "test"))
	assert.Equal(t, 1, calls)
}

func TestBus_HistoryBoundedAndFiltered(t *testing.T) {
	b := New(func(o *Options) {
		o.HistoryLimit = 3
	})

	for _, typ := range []string{"a", "b", "c", "d", "e"} {
		b.Emit(context.Background(), core.NewEvent(typ, "test"))
	}

	history := b.History(nil, 0)
	require.Len(t, history, 3)
	assert.Equal(t, "c", history[0].Type)
	assert.Equal(t, "e", history[2].Type)

	filtered := b.History(func(ev core.Event) bool { return ev.Type == "d" }, 0)
	require.Len(t, filtered, 1)

	newest := b.History(nil, 1)
	require.Len(t, newest, 1)
	assert.Equal(t, "e", newest[0].Type)
}

func TestBus_DeadLettersBoundedAndClearable(t *testing.T) {
	b := New(func(o *Options) {
		o.DeadLetterLimit = 2
	})

	b.Subscribe("fail", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		return nil, errors.New("nope")
	}))

	for range 4 {
		b.Emit(context.Background(), core.NewEvent("fail", "test"))
	}

	assert.Len(t, b.DeadLetters(0), 2)

	b.ClearDeadLetters()
	assert.Empty(t, b.DeadLetters(0))
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()

	id := b.Subscribe("ping", handlerReturning("pong"))

	assert.True(t, b.Unsubscribe(id))
	assert.False(t, b.Unsubscribe(id))

	results := b.Emit(context.Background(), core.NewEvent("ping", "test"))
	assert.Empty(t, results)
}

func TestBus_Stats(t *testing.T) {
	b := New()

	b.Subscribe("ok", handlerReturning(1))
	b.Subscribe("bad", HandlerFunc(func(_ context.Context, _ core.Event) (any, error) {
		return nil, errors.New("bad")
	}))

	b.Emit(context.Background(), core.NewEvent("ok", "test"))
	b.Emit(context.Background(), core.NewEvent("bad", "test"))

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Emitted)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, 2, stats.Subscriptions)
	assert.Equal(t, 2, stats.HistorySize)
	assert.Equal(t, 1, stats.DeadLetters)
	assert.True(t, stats.Running)
}
