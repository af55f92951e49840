// Package service implements the core proxy request handling: target
// extraction, header allow-listing in both directions, upstream outcome
// mapping and CORS.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"minij-proxy-go/internal/config"
	"minij-proxy-go/internal/model"
)

var (
	// ErrMissingURL is returned when the request has no url query parameter.
	ErrMissingURL = errors.New("missing url query parameter")
	// ErrInvalidURL is returned when the url query parameter is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("url query parameter must be an absolute http or https URL")
)

// Proxy-level status codes for upstream failures.
const (
	StatusUnknownError          = 520
	StatusOriginUnreachable     = 523
	StatusOriginTimeout         = 524
	StatusInvalidSSLCertificate = 526
)

const (
	targetParam        = "url"
	headerOrigin       = "Origin"
	headerAllowOrigin  = "Access-Control-Allow-Origin"
	upstreamServerFail = http.StatusInternalServerError
)

// forwardableRequestHeaders are the only request headers forwarded upstream.
var forwardableRequestHeaders = []string{
	"Content-Type",
	"Accept",
	"Accept-Language",
	"Range",
	"If-Modified-Since",
	"If-None-Match",
}

// forwardableResponseHeaders are the only upstream headers relayed to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Disposition": true,
	"Content-Type":        true,
	"Date":                true,
	"Last-Modified":       true,
	"Vary":                true,
	"Cache-Control":       true,
	"Etag":                true,
	"Accept-Ranges":       true,
	"Content-Range":       true,
}

// queryPattern matches the query string of URLs embedded in error messages.
var queryPattern = regexp.MustCompile(`(https?://[^\s"?]*)\?[^\s"]*`)

// Fetcher performs a single upstream GET.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, header http.Header) *model.FetchResult
}

// ProxyService turns one InboundRequest into one ProxyResponse. It is safe for
// concurrent use; the only state it holds is read-only configuration and the
// shared Fetcher.
type ProxyService struct {
	fetcher   Fetcher
	accessURL string
	logger    *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(f Fetcher, cfg *config.Config, logger *slog.Logger) *ProxyService {
	accessURL := cfg.Proxy.DefaultAccessURL
	if accessURL == "" {
		accessURL = config.DefaultAccessURL
	}

	return &ProxyService{
		fetcher:   f,
		accessURL: accessURL,
		logger:    logger.With("component", "proxy_service"),
	}
}

// Handle proxies a single request. Every branch yields a response: client
// input errors become 400/405, upstream failures become 52x, and the
// Access-Control-Allow-Origin header is always attached.
func (s *ProxyService) Handle(req *model.InboundRequest) *model.ProxyResponse {
	resp := &model.ProxyResponse{Header: make(http.Header)}

	if req.Method != http.MethodGet {
		resp.StatusCode = http.StatusMethodNotAllowed
	} else {
		s.fetchContent(req, resp)
	}

	resp.Header.Set(headerAllowOrigin, s.allowedOrigin(req.Header))
	return resp
}

func (s *ProxyService) fetchContent(req *model.InboundRequest, resp *model.ProxyResponse) {
	target, err := targetURL(req.Query)
	if err != nil {
		s.logger.Debug("rejecting request", "err", err)
		resp.StatusCode = http.StatusBadRequest
		return
	}

	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	res := s.fetcher.Fetch(ctx, target, makeRequestHeaders(req.Header))

	status, relay := mapOutcome(res)
	resp.StatusCode = status
	if !relay {
		s.logFailure(res, target, status)
		return
	}

	resp.Body = res.Body
	copyProxyHeaders(res.Header, resp.Header)
}

// mapOutcome is the single mapping from fetch result to response status.
// relay reports whether the upstream body and headers are passed through.
func mapOutcome(res *model.FetchResult) (status int, relay bool) {
	switch res.Outcome {
	case model.OutcomeSSLError:
		return StatusInvalidSSLCertificate, false
	case model.OutcomeConnectionError:
		return StatusOriginUnreachable, false
	case model.OutcomeTimeout:
		return StatusOriginTimeout, false
	case model.OutcomeTooManyRedirects:
		return StatusUnknownError, false
	case model.OutcomeSuccess:
		if res.StatusCode == upstreamServerFail {
			return StatusUnknownError, false
		}
		return res.StatusCode, true
	default:
		return StatusUnknownError, false
	}
}

func (s *ProxyService) logFailure(res *model.FetchResult, target string, status int) {
	attrs := []any{
		"outcome", res.Outcome.String(),
		"status", status,
		"target", redactURL(target),
	}
	if res.Outcome == model.OutcomeSuccess {
		s.logger.Info("upstream server error", append(attrs, "upstream_status", res.StatusCode)...)
		return
	}
	if res.Err != nil {
		attrs = append(attrs, "err", sanitizeError(res.Err))
	}
	s.logger.Warn("upstream fetch failed", attrs...)
}

// targetURL extracts and validates the url query parameter.
func targetURL(query url.Values) (string, error) {
	vals, ok := query[targetParam]
	if !ok || len(vals) == 0 {
		return "", ErrMissingURL
	}
	raw := vals[len(vals)-1]

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return raw, nil
}

// makeRequestHeaders builds the outbound header set from the allow-list only.
func makeRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if v := lastValue(src, key); v != "" {
			dst.Set(key, v)
		}
	}
	return dst
}

// copyProxyHeaders relays allow-listed upstream headers, matching on the
// title-cased name. Repeated values are folded into one comma-separated line.
func copyProxyHeaders(src, dst http.Header) {
	for key, vals := range src {
		name := http.CanonicalHeaderKey(key)
		if !forwardableResponseHeaders[name] || len(vals) == 0 {
			continue
		}
		dst.Set(name, strings.Join(vals, ", "))
	}
}

// allowedOrigin returns the request Origin, or the configured default when absent.
func (s *ProxyService) allowedOrigin(h http.Header) string {
	if origin := lastValue(h, headerOrigin); origin != "" {
		return origin
	}
	return s.accessURL
}

func lastValue(h http.Header, key string) string {
	vals := h.Values(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

// redactURL drops the query and fragment of a target URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable]"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// sanitizeError redacts query strings from URLs embedded in error messages.
func sanitizeError(err error) string {
	return queryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
