package crawler

import "fmt"

// CrawlError aborts a crawl. Err is usually a *render.LoadError.
type CrawlError struct {
	URL  string
	Page int
	Err  error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl aborted at page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}
