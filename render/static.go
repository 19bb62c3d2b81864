package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/gocolly/colly/v2"
)

// StaticOptions configures a StaticRenderer.
type StaticOptions struct {
	UserAgent        string
	Timeout          time.Duration
	Delay            time.Duration
	AllowedDomains   []string
	RespectRobotsTxt bool
}

// StaticRenderer fetches pages over HTTP with colly and serves them as
// goquery documents. It does not execute scripts.
type StaticRenderer struct {
	collector *colly.Collector
}

// NewStaticRenderer builds a renderer backed by a synchronous collector.
func NewStaticRenderer(opts StaticOptions) (*StaticRenderer, error) {
	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		options = append(options, colly.UserAgent(opts.UserAgent))
	}
	if len(opts.AllowedDomains) > 0 {
		options = append(options, colly.AllowedDomains(opts.AllowedDomains...))
	}

	collector := colly.NewCollector(options...)
	if opts.Timeout > 0 {
		collector.SetRequestTimeout(opts.Timeout)
	}
	collector.IgnoreRobotsTxt = !opts.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if opts.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       opts.Delay,
		}); err != nil {
			return nil, fmt.Errorf("configure delay: %w", err)
		}
	}

	return &StaticRenderer{collector: collector}, nil
}

// WithTransport replaces the HTTP transport, mainly for tests.
func (s *StaticRenderer) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// Load fetches rawURL. Non-2xx responses and non-HTML bodies are load failures.
func (s *StaticRenderer) Load(ctx context.Context, rawURL string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, newLoadError(rawURL, 0, err)
	}

	c := s.collector.Clone()
	c.Context = ctx
	var (
		doc    *staticDocument
		status int
	)
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		doc = &staticDocument{url: e.Request.URL.String(), root: e.DOM}
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, newLoadError(rawURL, status, err)
	}
	if doc == nil {
		return nil, newLoadError(rawURL, status, errors.New("response is not an HTML document"))
	}
	return doc, nil
}

// Close is a no-op; the collector holds no long-lived resources.
func (s *StaticRenderer) Close() error {
	return nil
}

// ParseHTML builds a Document from markup as if it had been loaded from pageURL.
func ParseHTML(pageURL, html string) (Document, error) {
	return ParseReader(pageURL, strings.NewReader(html))
}

// ParseReader is ParseHTML for a stream.
func ParseReader(pageURL string, r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &staticDocument{url: pageURL, root: doc.Selection}, nil
}

type staticDocument struct {
	url  string
	root *goquery.Selection
}

func (d *staticDocument) URL() string {
	return d.url
}

func (d *staticDocument) Query(selector string) ([]Element, error) {
	return querySelection(d.root, selector)
}

// WaitReady returns at once: a fetched document is already complete.
func (d *staticDocument) WaitReady(ctx context.Context, _ string, _ time.Duration) error {
	return ctx.Err()
}

type selectionElement struct {
	sel *goquery.Selection
}

func (e selectionElement) Query(selector string) ([]Element, error) {
	return querySelection(e.sel, selector)
}

func (e selectionElement) Attr(name string) (string, error) {
	value, ok := e.sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAttributeMissing, name)
	}
	return value, nil
}

func (e selectionElement) Text() (string, error) {
	return e.sel.Text(), nil
}

func querySelection(sel *goquery.Selection, selector string) ([]Element, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	found := sel.FindMatcher(matcher)
	out := make([]Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selectionElement{sel: s})
	})
	return out, nil
}
