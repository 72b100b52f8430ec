// Package renderer loads pages in headless Chrome so selectors can be
// tried against the DOM a browser-driven scrape would see.
package renderer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single render
	DefaultTimeout = 30 * time.Second
	// DefaultSettle is how long scripts get to run after the body is ready
	DefaultSettle = 2 * time.Second
)

// Options configures a ChromeRenderer
type Options struct {
	UserAgent         string
	JavascriptEnabled bool
	Timeout           time.Duration
	Settle            time.Duration
	Logger            *zap.Logger
}

// ChromeRenderer renders pages with headless Chrome
type ChromeRenderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	opts        Options
	logger      *zap.Logger
}

// NewChromeRenderer creates an allocator for headless Chrome. The
// browser process itself starts lazily on the first Render.
func NewChromeRenderer(parent context.Context, opts Options) (*ChromeRenderer, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if !opts.JavascriptEnabled {
		allocOpts = append(allocOpts, chromedp.Flag("blink-settings", "scriptEnabled=false"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	return &ChromeRenderer{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Render loads pageURL and returns the document's outer HTML once the
// body is ready and the settle period has passed
func (cr *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(cr.allocCtx)
	defer cancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, cr.opts.Timeout)
	defer timeoutCancel()

	// Stop the tab when the caller's context ends.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var htmlContent string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(cr.opts.Settle),
		chromedp.OuterHTML("html", &htmlContent),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to render page: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	cr.logger.Debug("page rendered",
		zap.String("url", pageURL),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", len(htmlContent)),
	)
	return htmlContent, nil
}

// NeedsRendering reports whether fetched HTML looks like a script-built
// shell whose content only appears after JavaScript runs
func NeedsRendering(htmlContent string) bool {
	if len(htmlContent) < 500 {
		return true
	}

	jsIndicators := []string{
		`<div id="root"></div>`,
		`<div id="app"></div>`,
		"<noscript>you need to enable javascript",
		"javascript is required",
		"please enable javascript",
		"__next_data__",
		"ng-app",
		"v-app",
		"data-reactroot",
	}

	lower := strings.ToLower(htmlContent)
	for _, indicator := range jsIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// Close shuts down the browser
func (cr *ChromeRenderer) Close() {
	if cr.allocCancel != nil {
		cr.allocCancel()
	}
}
