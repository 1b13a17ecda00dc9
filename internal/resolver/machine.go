package resolver

import (
	"context"
	"strings"
	"time"
)

// Config tunes the redirect resolution chain.
type Config struct {
	// RedirectHost and ConsentHost identify aggregator-internal locations.
	RedirectHost string
	ConsentHost  string

	// NavTimeout bounds a single page load.
	NavTimeout time.Duration
	// SettleDelay is the extra wait applied by the conservative retry
	// strategy after the load completes.
	SettleDelay time.Duration
	// PollInterval and PollAttempts bound the location polling loop while
	// the page sits on an aggregator-internal host.
	PollInterval time.Duration
	PollAttempts int

	// ConsentSelectors are best-effort click targets on the consent
	// interstitial, tried in priority order.
	ConsentSelectors []string
}

func (c Config) withDefaults() Config {
	if c.RedirectHost == "" {
		c.RedirectHost = "news.google.com"
	}
	if c.ConsentHost == "" {
		c.ConsentHost = "consent.google.com"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 20 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 10
	}
	if len(c.ConsentSelectors) == 0 {
		c.ConsentSelectors = []string{
			`button[aria-label="Accept all"]`,
			`form[action*="consent"] button`,
		}
	}
	return c
}

// Page is one browser page the machine drives. The chromedp implementation
// lives in Session; tests substitute fakes.
type Page interface {
	// Navigate loads url. The conservative strategy waits for the page to
	// settle after the load event instead of returning immediately.
	Navigate(ctx context.Context, url string, conservative bool) error
	// Location reports the page's current URL.
	Location(ctx context.Context) (string, error)
	// AcceptConsent performs best-effort consent interactions. Individual
	// interaction failures are swallowed; only a later location poll can
	// advance the chain.
	AcceptConsent(ctx context.Context)
}

type state int

const (
	stateNavigating state = iota
	stateAwaitingRedirect
	stateConsentPrompt
	stateResolved
	stateFailed
)

// Machine drives one page through the interstitial chain to a terminal
// destination.
type Machine struct {
	cfg Config
}

func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg.withDefaults()}
}

// Resolve runs the chain for inputURL, retrying a failed attempt exactly
// once with the conservative navigation strategy. ok is false when the URL
// stays unresolved; that is a valid terminal outcome, not an error.
func (m *Machine) Resolve(ctx context.Context, page Page, inputURL string) (decoded string, ok bool) {
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return "", false
		}
		conservative := attempt > 0
		if final, resolved := m.attempt(ctx, page, inputURL, conservative); resolved {
			return final, true
		}
	}
	return "", false
}

func (m *Machine) attempt(ctx context.Context, page Page, inputURL string, conservative bool) (string, bool) {
	var (
		st       = stateNavigating
		location string
		polls    int
	)

	for {
		switch st {
		case stateNavigating:
			navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavTimeout)
			err := page.Navigate(navCtx, inputURL, conservative)
			cancel()
			if err != nil {
				st = stateFailed
				continue
			}
			loc, err := page.Location(ctx)
			if err != nil {
				st = stateFailed
				continue
			}
			location = loc
			st = m.classify(location)

		case stateAwaitingRedirect, stateConsentPrompt:
			if polls >= m.cfg.PollAttempts {
				st = stateFailed
				continue
			}
			if st == stateConsentPrompt {
				page.AcceptConsent(ctx)
			}
			if !sleepContext(ctx, m.cfg.PollInterval) {
				st = stateFailed
				continue
			}
			loc, err := page.Location(ctx)
			if err != nil {
				st = stateFailed
				continue
			}
			location = loc
			polls++
			st = m.classify(location)

		case stateResolved:
			// A final location byte-identical to the input means the
			// redirect script never fired.
			if location == inputURL {
				st = stateFailed
				continue
			}
			return location, true

		case stateFailed:
			return "", false
		}
	}
}

func (m *Machine) classify(location string) state {
	switch {
	case containsHost(location, m.cfg.ConsentHost):
		return stateConsentPrompt
	case containsHost(location, m.cfg.RedirectHost):
		return stateAwaitingRedirect
	default:
		return stateResolved
	}
}

func containsHost(location, host string) bool {
	return strings.Contains(location, host)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
