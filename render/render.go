// Package render provides the page-rendering capability the crawler loads
// catalogue pages through. Implementations hand back a queryable DOM.
package render

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPageLoad matches every failure to produce a document for a URL.
	ErrPageLoad = errors.New("render: page load failed")
	// ErrAttributeMissing is returned by Element.Attr for absent attributes.
	ErrAttributeMissing = errors.New("render: attribute missing")
	// ErrNotReady is returned by WaitReady when the selector never appeared.
	ErrNotReady = errors.New("render: selector not ready")
)

// Renderer loads URLs into documents. One Renderer serves a whole crawl.
type Renderer interface {
	Load(ctx context.Context, url string) (Document, error)
	Close() error
}

// Factory acquires a Renderer at crawl start.
type Factory func(ctx context.Context) (Renderer, error)

// Queryer finds descendants by CSS selector. An empty result is not an error.
type Queryer interface {
	Query(selector string) ([]Element, error)
}

// Document is a loaded page.
type Document interface {
	Queryer
	// URL is the final location of the page, used to resolve relative links.
	URL() string
	// WaitReady blocks until selector matches or timeout elapses.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error
}

// Element is a node inside a Document.
type Element interface {
	Queryer
	Attr(name string) (string, error)
	Text() (string, error)
}

// First returns the first match of selector under q.
func First(q Queryer, selector string) (Element, error) {
	matches, err := q.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &NoMatchError{Selector: selector}
	}
	return matches[0], nil
}

// NoMatchError reports a selector that matched nothing.
type NoMatchError struct {
	Selector string
}

func (e *NoMatchError) Error() string {
	return "render: no element matches " + e.Selector
}
