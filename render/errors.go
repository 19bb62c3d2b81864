package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind groups load failures for metrics and logs.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindCanceled    ErrorKind = "canceled"
	KindOther       ErrorKind = "other"
)

// LoadError wraps every failure to load a page.
type LoadError struct {
	URL        string
	StatusCode int
	Kind       ErrorKind
	Err        error
}

func (e *LoadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("load %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPageLoad) match any LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrPageLoad
}

// kind returns Kind, deriving it when the error was built by hand.
func (e *LoadError) kind() ErrorKind {
	if e.Kind != "" {
		return e.Kind
	}
	return classify(e.Err, e.StatusCode)
}

// ErrorTypeLabel maps an error to a metrics label. Errors outside a
// LoadError are classified the same way, without a status code.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return string(loadErr.kind())
	}
	return string(classify(err, 0))
}

func classify(err error, statusCode int) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}

	switch statusCode {
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	}
	return KindOther
}

func newLoadError(url string, statusCode int, err error) *LoadError {
	if err == nil {
		if statusCode != 0 {
			err = fmt.Errorf("http status %d", statusCode)
		} else {
			err = errors.New("no document produced")
		}
	}
	return &LoadError{
		URL:        url,
		StatusCode: statusCode,
		Kind:       classify(err, statusCode),
		Err:        err,
	}
}
