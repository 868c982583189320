package scraper

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const dockerChromium = "/usr/bin/chromium-browser"

// BrowserOptions configures the headless browser.
type BrowserOptions struct {
	Bin       string
	UserAgent string
	Timeout   time.Duration
}

// BrowserFetcher renders pages in headless Chromium, for shops that only
// fill the price in with JavaScript.
type BrowserFetcher struct {
	browser   *rod.Browser
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger

	// Pages are opened one at a time; the runner is sequential anyway.
	mu sync.Mutex
}

// NewBrowserFetcher launches Chromium. Use the system binary in Docker,
// otherwise let rod download or detect one.
func NewBrowserFetcher(opts BrowserOptions, logger *zap.Logger) (*BrowserFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)

	switch {
	case opts.Bin != "":
		l = l.Bin(opts.Bin)
	default:
		if _, err := os.Stat(dockerChromium); err == nil {
			l = l.Bin(dockerChromium)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	logger.Info("headless browser ready", zap.String("control_url", controlURL))

	return &BrowserFetcher{
		browser:   browser,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		logger:    logger,
	}, nil
}

// Fetch loads the page, waits for it to settle and returns the rendered HTML.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Debug("close page", zap.Error(err))
		}
	}()

	p := page.Context(ctx).Timeout(b.timeout)

	if b.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.userAgent,
			AcceptLanguage: "pt-BR,pt;q=0.9,en;q=0.8",
		}); err != nil {
			return "", &FetchError{URL: target, Err: err}
		}
	}

	if err := p.Navigate(target); err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	if err := p.WaitLoad(); err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	// Prices are often injected after load; give the page a moment to settle.
	if err := p.WaitStable(time.Second); err != nil {
		b.logger.Debug("page did not settle", zap.String("url", target), zap.Error(err))
	}

	html, err := p.HTML()
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	return html, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	if b.browser == nil {
		return nil
	}
	return b.browser.Close()
}
