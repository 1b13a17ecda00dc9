package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// countingOpener hands out fake pages while tracking how many sessions are
// open at once.
type countingOpener struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	opened  atomic.Int32
	failAll bool
	final   string
}

func (o *countingOpener) newSession(context.Context) (PageSession, error) {
	if o.failAll {
		return nil, errors.New("browser gone")
	}
	o.opened.Add(1)
	n := o.open.Add(1)
	for {
		max := o.maxOpen.Load()
		if n <= max || o.maxOpen.CompareAndSwap(max, n) {
			break
		}
	}
	return &countedPage{
		fakePage: fakePage{locations: []string{o.final}},
		opener:   o,
	}, nil
}

type countedPage struct {
	fakePage
	opener    *countingOpener
	closeOnce sync.Once
}

func (p *countedPage) Close() {
	p.closeOnce.Do(func() {
		p.opener.open.Add(-1)
	})
	p.fakePage.Close()
}

func newTestPool(open func(ctx context.Context) (PageSession, error), width int) *Pool {
	return &Pool{
		open:    open,
		machine: NewMachine(fastConfig()),
		width:   width,
		logger:  zerolog.Nop(),
	}
}

func TestPoolBoundsConcurrencyAndEmitsEveryResult(t *testing.T) {
	t.Parallel()

	opener := &countingOpener{final: "https://example.com/final"}
	pool := newTestPool(opener.newSession, 10)

	urls := make([]string, 25)
	for i := range urls {
		urls[i] = "https://news.google.com/rss/articles/task"
	}

	var (
		mu      sync.Mutex
		results = map[int]string{}
	)
	pool.ResolveBatch(context.Background(), urls, func(index int, decoded string, ok bool) {
		// Hold each session open long enough for the width limit to bite.
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if _, dup := results[index]; dup {
			t.Errorf("duplicate result for task %d", index)
		}
		if !ok {
			t.Errorf("task %d unresolved", index)
		}
		results[index] = decoded
	})

	if len(results) != len(urls) {
		t.Fatalf("got %d results, want %d", len(results), len(urls))
	}
	if got := opener.maxOpen.Load(); got > 10 {
		t.Errorf("max open sessions = %d, want at most 10", got)
	}
	if got := opener.opened.Load(); got != int32(len(urls)) {
		t.Errorf("opened %d sessions, want one per task", got)
	}
	if got := opener.open.Load(); got != 0 {
		t.Errorf("%d sessions left open after the batch", got)
	}
}

func TestPoolEmitsFailureWhenSessionCannotOpen(t *testing.T) {
	t.Parallel()

	opener := &countingOpener{failAll: true}
	pool := newTestPool(opener.newSession, 3)

	var (
		mu    sync.Mutex
		calls int
	)
	pool.ResolveBatch(context.Background(), []string{"a", "b", "c", "d"}, func(index int, decoded string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if ok || decoded != "" {
			t.Errorf("task %d reported success without a session", index)
		}
	})
	if calls != 4 {
		t.Fatalf("emit called %d times, want 4", calls)
	}
}

func TestPoolContainsPanics(t *testing.T) {
	t.Parallel()

	pool := newTestPool(func(context.Context) (PageSession, error) {
		return &countedPage{fakePage: fakePage{locations: []string{"https://example.com/x"}}, opener: &countingOpener{}}, nil
	}, 2)

	var done atomic.Int32
	pool.Run(context.Background(), 6, func(_ context.Context, index int, _ Page) {
		if index == 2 {
			panic("scripted")
		}
		done.Add(1)
	})
	if got := done.Load(); got != 5 {
		t.Fatalf("completed %d tasks, want the 5 that did not panic", got)
	}
}

func TestPoolRunEmptyBatch(t *testing.T) {
	t.Parallel()

	pool := newTestPool(func(context.Context) (PageSession, error) {
		t.Error("session opened for an empty batch")
		return nil, errors.New("unreachable")
	}, 4)
	pool.Run(context.Background(), 0, func(context.Context, int, Page) {
		t.Error("work invoked for an empty batch")
	})
}
