// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
	"net/url"
)

// InboundRequest is the engine-neutral view of a client request.
type InboundRequest struct {
	Ctx    context.Context
	Method string
	Query  url.Values
	Header http.Header
}

// Outcome classifies a single upstream fetch attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSSLError
	OutcomeConnectionError
	OutcomeTimeout
	OutcomeTooManyRedirects
)

// String returns the metrics/log label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSSLError:
		return "ssl_error"
	case OutcomeConnectionError:
		return "connection_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTooManyRedirects:
		return "too_many_redirects"
	default:
		return "unknown"
	}
}

// FetchResult is the result of one upstream GET. StatusCode, Header and Body
// are only populated when Outcome is OutcomeSuccess; Err carries the
// underlying transport error otherwise.
type FetchResult struct {
	Outcome    Outcome
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

// ProxyResponse is the response returned to the client. Body is fully
// buffered; nil means empty.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
