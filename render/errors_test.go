package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoadErrorKind(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   ErrorKind
	}{
		{name: "no error and no status", err: nil, statusCode: 0, expected: KindOther},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: KindTimeout},
		{name: "context canceled", err: &url.Error{Op: "Get", URL: "http://example.test/", Err: context.Canceled}, expected: KindCanceled},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: KindTimeout},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: KindConnection},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: KindForbidden},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: KindNotFound},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: KindRateLimited},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: KindOther},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newLoadError("http://example.test/", tt.statusCode, tt.err)
			assert.Equal(t, tt.expected, err.Kind)
			assert.Error(t, err.Err)
			assert.Equal(t, string(tt.expected), ErrorTypeLabel(err))
		})
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "plain canceled", err: context.Canceled, expected: "canceled"},
		{name: "plain deadline", err: fmt.Errorf("settle: %w", context.DeadlineExceeded), expected: "timeout"},
		{name: "plain error", err: errors.New("boom"), expected: "other"},
		{name: "hand built load error", err: &LoadError{URL: "u", StatusCode: http.StatusNotFound, Err: errors.New("Not Found")}, expected: "not_found"},
		{name: "wrapped load error", err: fmt.Errorf("page 2: %w", newLoadError("u", http.StatusForbidden, nil)), expected: "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorTypeLabel(tt.err))
		})
	}
}

func TestLoadErrorMatchesPageLoad(t *testing.T) {
	err := newLoadError("http://example.test/", http.StatusNotFound, errors.New("Not Found"))

	assert.ErrorIs(t, err, ErrPageLoad)
	assert.Contains(t, err.Error(), "status 404")

	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
	assert.Equal(t, KindNotFound, loadErr.Kind)
}
