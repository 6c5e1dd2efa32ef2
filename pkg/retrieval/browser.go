package retrieval

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser fetches fully rendered pages with a headless Chromium driven by
// Playwright. The driver is started on first use and shared by all fetches.
type Browser struct {
	mu       sync.Mutex
	pw       *playwright.Playwright
	headless bool
	install  bool
	timeout  time.Duration
	settle   time.Duration
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithHeadless toggles headless mode.
func WithHeadless(headless bool) BrowserOption {
	return func(b *Browser) {
		b.headless = headless
	}
}

// WithInstall installs the Playwright driver and browsers on first use.
func WithInstall(install bool) BrowserOption {
	return func(b *Browser) {
		b.install = install
	}
}

// WithNavigationTimeout bounds page navigation.
func WithNavigationTimeout(d time.Duration) BrowserOption {
	return func(b *Browser) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithSettleDelay waits after navigation for late client-side rendering.
func WithSettleDelay(d time.Duration) BrowserOption {
	return func(b *Browser) {
		b.settle = d
	}
}

// NewBrowser creates a page fetcher. No browser is started until Fetch.
func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		headless: true,
		timeout:  DefaultTimeout,
		settle:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Browser) start() (*playwright.Playwright, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pw != nil {
		return b.pw, nil
	}

	// Keep driver output off the terminal
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if b.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	b.pw = pw
	return pw, nil
}

// Fetch implements Fetcher. Navigation waits for the network to go idle.
func (b *Browser) Fetch(ctx context.Context, url string) (*PageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := b.start()
	if err != nil {
		return nil, err
	}

	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	timeoutMs := float64(timeout.Milliseconds())

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &b.headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			logger.Warnf("failed to close browser: %v", cerr)
		}
	}()

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(timeoutMs)

	logger.Debugf("navigating to %s", url)
	waitUntil := playwright.WaitUntilState("networkidle")
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &timeoutMs,
	}); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	if b.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.settle):
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	data, err := ParsePage(url, content)
	if err != nil {
		return nil, err
	}

	// The rendered title wins over the parsed one when scripts changed it
	if title, err := page.Title(); err == nil && title != "" {
		data.Title = title
	}
	if text, err := page.InnerText("body"); err == nil && text != "" {
		data.Text = text
	}

	logger.Infof("fetched %s (%d characters of HTML)", url, len(content))
	return data, nil
}

// Close stops the Playwright driver.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pw == nil {
		return nil
	}
	err := b.pw.Stop()
	b.pw = nil
	return err
}
