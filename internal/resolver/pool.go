package resolver

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultWidth bounds concurrent resolutions when no width is configured.
const DefaultWidth = 10

// PageSession is a closable Page. *Session implements it; tests use fakes.
type PageSession interface {
	Page
	Close()
}

// Pool fans a batch of resolution tasks out over a bounded number of
// workers, one fresh isolated session per task.
type Pool struct {
	open    func(ctx context.Context) (PageSession, error)
	machine *Machine
	width   int
	logger  zerolog.Logger
}

func NewPool(browser *Browser, machine *Machine, width int, logger zerolog.Logger) *Pool {
	return &Pool{
		open: func(ctx context.Context) (PageSession, error) {
			return browser.NewSession(ctx)
		},
		machine: machine,
		width:   width,
		logger:  logger,
	}
}

// Run invokes work exactly once for each index in [0, n). The page passed to
// work is nil when a session could not be opened; work must treat that as an
// unresolved task, not skip its result. Panics in work are contained to the
// task that raised them.
func (p *Pool) Run(ctx context.Context, n int, work func(ctx context.Context, index int, page Page)) {
	if n <= 0 {
		return
	}
	width := p.width
	if width <= 0 {
		width = DefaultWidth
	}
	if width > n {
		width = n
	}

	indexes := make(chan int)
	go func() {
		defer close(indexes)
		for i := 0; i < n; i++ {
			indexes <- i
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				p.runOne(ctx, i, work)
			}
		}()
	}
	wg.Wait()
}

func (p *Pool) runOne(ctx context.Context, index int, work func(ctx context.Context, index int, page Page)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("task", index).Interface("panic", r).Msg("resolution task panicked")
		}
	}()

	session, err := p.open(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Int("task", index).Msg("open browser session")
		work(ctx, index, nil)
		return
	}
	defer session.Close()
	work(ctx, index, session)
}

// ResolveBatch resolves urls concurrently. emit is called exactly once per
// url, from worker goroutines in completion order; it must be safe for
// concurrent use.
func (p *Pool) ResolveBatch(ctx context.Context, urls []string, emit func(index int, decoded string, ok bool)) {
	p.Run(ctx, len(urls), func(ctx context.Context, i int, page Page) {
		if page == nil {
			emit(i, "", false)
			return
		}
		decoded, ok := p.machine.Resolve(ctx, page, urls[i])
		emit(i, decoded, ok)
	})
}
