package resolver

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const locationTimeout = 5 * time.Second

// Session is one isolated browser context with a single tab. It implements
// Page for the resolution machine.
type Session struct {
	browser   *Browser
	bctxID    cdp.BrowserContextID
	tabCtx    context.Context
	tabCancel context.CancelFunc
	cfg       Config
}

// Close detaches the tab and disposes the isolated browser context.
func (s *Session) Close() {
	s.tabCancel()

	disposeCtx, cancel := context.WithTimeout(s.browser.browserCtx, 5*time.Second)
	defer cancel()
	err := chromedp.Run(disposeCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.DisposeBrowserContext(s.bctxID).Do(ctx)
	}))
	if err != nil {
		s.browser.logger.Debug().Err(err).Msg("dispose browser context")
	}
}

// Navigate loads url in the session's tab. The conservative strategy keeps
// the page open for an extra settle delay so late client-side redirects get
// a chance to fire before the machine reads the location.
func (s *Session) Navigate(ctx context.Context, url string, conservative bool) error {
	runCtx, cancel := s.boundTab(ctx, s.cfg.NavTimeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if conservative {
		actions = append(actions, chromedp.Sleep(s.cfg.SettleDelay))
	}
	return chromedp.Run(runCtx, actions...)
}

// Location reports the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	runCtx, cancel := s.boundTab(ctx, locationTimeout)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// AcceptConsent tries each configured consent selector in order. Clicks are
// best effort; a selector that never appears just times out quietly.
func (s *Session) AcceptConsent(ctx context.Context) {
	for _, sel := range s.cfg.ConsentSelectors {
		runCtx, cancel := s.boundTab(ctx, time.Second)
		err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			return
		}
	}
}

// boundTab derives a context from the tab bounded by both the timeout and
// the caller's cancellation.
func (s *Session) boundTab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Resolve runs the full resolution chain for inputURL in this session.
func (s *Session) Resolve(ctx context.Context, machine *Machine, inputURL string) (string, bool) {
	return machine.Resolve(ctx, s, inputURL)
}
