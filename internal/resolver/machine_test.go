package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		NavTimeout:   100 * time.Millisecond,
		SettleDelay:  time.Millisecond,
		PollInterval: time.Millisecond,
		PollAttempts: 5,
	}
}

// fakePage replays a scripted sequence of locations. The last location
// repeats once the script runs out.
type fakePage struct {
	mu            sync.Mutex
	locations     []string
	navErrs       []error
	navCalls      int
	conservatives []bool
	consentCalls  int
	locCalls      int
	closed        bool
}

func (p *fakePage) Navigate(_ context.Context, _ string, conservative bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.navCalls
	p.navCalls++
	p.conservatives = append(p.conservatives, conservative)
	if call < len(p.navErrs) {
		return p.navErrs[call]
	}
	return nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.locations) == 0 {
		return "", errors.New("no location scripted")
	}
	i := p.locCalls
	if i >= len(p.locations) {
		i = len(p.locations) - 1
	}
	p.locCalls++
	return p.locations[i], nil
}

func (p *fakePage) AcceptConsent(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consentCalls++
}

func (p *fakePage) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func TestMachineResolvesImmediately(t *testing.T) {
	t.Parallel()

	page := &fakePage{locations: []string{"https://example.com/story"}}
	m := NewMachine(fastConfig())

	input := "https://news.google.com/rss/articles/abc"
	decoded, ok := m.Resolve(context.Background(), page, input)
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if decoded != "https://example.com/story" {
		t.Fatalf("decoded = %q", decoded)
	}
	if page.navCalls != 1 {
		t.Errorf("navCalls = %d, want 1", page.navCalls)
	}
	if page.consentCalls != 0 {
		t.Errorf("consent clicked %d times on a page with no prompt", page.consentCalls)
	}
}

func TestMachinePollsThroughRedirect(t *testing.T) {
	t.Parallel()

	page := &fakePage{locations: []string{
		"https://news.google.com/articles/abc",
		"https://news.google.com/articles/abc",
		"https://example.com/final",
	}}
	m := NewMachine(fastConfig())

	decoded, ok := m.Resolve(context.Background(), page, "https://news.google.com/rss/articles/abc")
	if !ok || decoded != "https://example.com/final" {
		t.Fatalf("got (%q, %v), want resolved final URL", decoded, ok)
	}
	if page.navCalls != 1 {
		t.Errorf("navCalls = %d, want 1 (no retry on a successful attempt)", page.navCalls)
	}
}

func TestMachineClicksConsent(t *testing.T) {
	t.Parallel()

	page := &fakePage{locations: []string{
		"https://consent.google.com/m?continue=abc",
		"https://consent.google.com/m?continue=abc",
		"https://example.com/final",
	}}
	m := NewMachine(fastConfig())

	decoded, ok := m.Resolve(context.Background(), page, "https://news.google.com/rss/articles/abc")
	if !ok || decoded != "https://example.com/final" {
		t.Fatalf("got (%q, %v), want resolved final URL", decoded, ok)
	}
	if page.consentCalls == 0 {
		t.Error("consent was never attempted on a consent page")
	}
}

func TestMachineFailsWhenStuckOnAggregator(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	page := &fakePage{locations: []string{"https://news.google.com/rss/articles/abc"}}
	m := NewMachine(cfg)

	decoded, ok := m.Resolve(context.Background(), page, "https://news.google.com/rss/articles/abc")
	if ok || decoded != "" {
		t.Fatalf("got (%q, %v), want unresolved", decoded, ok)
	}
	if page.navCalls != 2 {
		t.Fatalf("navCalls = %d, want exactly one retry", page.navCalls)
	}
	if !page.conservatives[1] {
		t.Error("retry did not use the conservative strategy")
	}
	// Each attempt reads once after navigation plus at most PollAttempts
	// poll reads.
	maxLoc := 2 * (1 + cfg.PollAttempts)
	if page.locCalls > maxLoc {
		t.Errorf("locCalls = %d, want at most %d", page.locCalls, maxLoc)
	}
}

func TestMachineFailsWhenFinalEqualsInput(t *testing.T) {
	t.Parallel()

	// Off-aggregator location that never changed from the input URL.
	input := "https://example.com/landing"
	page := &fakePage{locations: []string{input}}
	m := NewMachine(fastConfig())

	if decoded, ok := m.Resolve(context.Background(), page, input); ok {
		t.Fatalf("resolved to %q, want failure when final equals input", decoded)
	}
	if page.navCalls != 2 {
		t.Errorf("navCalls = %d, want a single conservative retry", page.navCalls)
	}
}

func TestMachineRetriesNavigationErrorOnce(t *testing.T) {
	t.Parallel()

	page := &fakePage{
		navErrs:   []error{errors.New("net::ERR_TIMED_OUT")},
		locations: []string{"https://example.com/final"},
	}
	m := NewMachine(fastConfig())

	decoded, ok := m.Resolve(context.Background(), page, "https://news.google.com/rss/articles/abc")
	if !ok || decoded != "https://example.com/final" {
		t.Fatalf("got (%q, %v), want success on the conservative retry", decoded, ok)
	}
	if page.navCalls != 2 {
		t.Errorf("navCalls = %d, want 2", page.navCalls)
	}
}

func TestMachineGivesUpAfterSecondFailure(t *testing.T) {
	t.Parallel()

	page := &fakePage{
		navErrs:   []error{errors.New("boom"), errors.New("boom")},
		locations: []string{"https://example.com/final"},
	}
	m := NewMachine(fastConfig())

	if _, ok := m.Resolve(context.Background(), page, "https://news.google.com/rss/articles/abc"); ok {
		t.Fatal("expected failure after two failed attempts")
	}
	if page.navCalls != 2 {
		t.Fatalf("navCalls = %d, retry budget is exactly one", page.navCalls)
	}
}

func TestMachineStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakePage{locations: []string{"https://example.com/final"}}
	m := NewMachine(fastConfig())

	if _, ok := m.Resolve(ctx, page, "https://news.google.com/rss/articles/abc"); ok {
		t.Fatal("expected cancelled context to abort resolution")
	}
}
