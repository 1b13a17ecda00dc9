package resolver

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Browser owns a single headless Chrome process. Sessions opened from it run
// in isolated browser contexts so cookies and storage never leak between
// concurrent resolutions.
type Browser struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	cfg    Config
	logger zerolog.Logger
}

// Launch starts the shared browser process. The caller must Close it.
func Launch(ctx context.Context, cfg Config, logger zerolog.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the process to start now, so a broken
	// Chrome install fails the command instead of every session.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Browser{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		cfg:           cfg.withDefaults(),
		logger:        logger,
	}, nil
}

// Close shuts down the browser process and every session opened from it.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// NewSession opens an isolated incognito-style browser context with a single
// blank tab attached to it.
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		bctxID   cdp.BrowserContextID
		targetID target.ID
	)
	err := chromedp.Run(b.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		bctxID, err = target.CreateBrowserContext().Do(ctx)
		if err != nil {
			return fmt.Errorf("create browser context: %w", err)
		}
		targetID, err = target.CreateTarget("about:blank").
			WithBrowserContextID(bctxID).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("create target: %w", err)
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(targetID))
	return &Session{
		browser:   b,
		bctxID:    bctxID,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		cfg:       b.cfg,
	}, nil
}
