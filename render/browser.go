package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions configures a BrowserRenderer.
type BrowserOptions struct {
	Bin       string
	Headless  bool
	NoSandbox bool
	UserAgent string
	Timeout   time.Duration
}

// BrowserRenderer drives one headless Chromium session through rod.
// A single tab is reused for every Load.
type BrowserRenderer struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// NewBrowserRenderer launches the browser and opens the tab.
func NewBrowserRenderer(ctx context.Context, opts BrowserOptions) (*BrowserRenderer, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("mute-audio")

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			slog.Warn("set user agent failed", slog.Any("error", err))
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BrowserRenderer{
		launcher: l,
		browser:  browser,
		page:     page,
		timeout:  timeout,
	}, nil
}

// Load navigates the tab and waits for the load event.
func (b *BrowserRenderer) Load(ctx context.Context, rawURL string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, newLoadError(rawURL, 0, err)
	}

	p := b.page.Context(ctx).Timeout(b.timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(rawURL); err != nil {
		return nil, newLoadError(rawURL, 0, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, newLoadError(rawURL, 0, err)
	}
	if err := documentStatusError(rawURL, navigationStatus(p)); err != nil {
		return nil, err
	}

	current := rawURL
	if info, err := p.Info(); err == nil && info.URL != "" {
		current = info.URL
	}
	return &browserDocument{page: b.page.Context(ctx), url: current}, nil
}

// Close shuts the tab, the browser and the launched process.
func (b *BrowserRenderer) Close() error {
	var errs []error
	if b.page != nil {
		if err := b.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return errors.Join(errs...)
}

// navigationStatusJS reads the HTTP status of the main document. Chromium
// reports 0 when the status is unknown.
const navigationStatusJS = `() => {
	const entry = performance.getEntriesByType("navigation")[0];
	return entry && entry.responseStatus ? entry.responseStatus : 0;
}`

func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(navigationStatusJS)
	if err != nil {
		slog.Debug("read navigation status failed", slog.Any("error", err))
		return 0
	}
	return res.Value.Int()
}

// documentStatusError fails an error status the same way colly does for
// the static renderer. Unknown (0) and successful statuses pass.
func documentStatusError(rawURL string, status int) error {
	if status < http.StatusBadRequest {
		return nil
	}
	return newLoadError(rawURL, status, errors.New(http.StatusText(status)))
}

type browserDocument struct {
	page *rod.Page
	url  string
}

func (d *browserDocument) URL() string {
	return d.url
}

func (d *browserDocument) Query(selector string) ([]Element, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapRodElements(els), nil
}

// WaitReady polls for selector until it appears or timeout elapses.
func (d *browserDocument) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if _, err := p.Element(selector); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotReady, selector, err)
	}
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Query(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapRodElements(els), nil
}

func (e rodElement) Attr(name string) (string, error) {
	value, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("%w: %s", ErrAttributeMissing, name)
	}
	return *value, nil
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}
