// Package client provides the shared upstream HTTP client and classifies
// fetch failures into proxy outcomes.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"minij-proxy-go/internal/config"
	"minij-proxy-go/internal/metrics"
	"minij-proxy-go/internal/model"
)

// ErrTooManyRedirects is returned by the redirect policy once the hop limit is reached.
var ErrTooManyRedirects = errors.New("too many redirects")

const (
	userAgent           = "minij-proxy-go/1.0"
	defaultMaxRedirects = 10
)

// OriginClient issues GET requests to arbitrary origins. A single instance is
// shared by all requests; it holds no per-request state.
type OriginClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling and a total
// per-fetch timeout. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	timeout := cfg.Proxy.TimeoutSeconds
	if timeout <= 0 {
		timeout = config.DefaultTimeoutSeconds
	}
	maxRedirects := cfg.Proxy.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Proxy.IdleConnections,
		MaxIdleConnsPerHost: cfg.Proxy.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &OriginClient{
		httpClient: &http.Client{
			Transport:     transport,
			Timeout:       time.Duration(timeout) * time.Second,
			CheckRedirect: redirectPolicy(maxRedirects),
		},
		logger:  logger.With("component", "origin_client"),
		metrics: m,
	}
}

func redirectPolicy(limit int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects: %w", limit, ErrTooManyRedirects)
		}
		return nil
	}
}

// Fetch performs one GET against rawURL carrying exactly the given headers and
// returns the fully buffered result. Transport failures are reported through
// the result's Outcome, never as a Go error. The context bounds the fetch in
// addition to the client timeout; cancelling it aborts the upstream request.
func (c *OriginClient) Fetch(ctx context.Context, rawURL string, header http.Header) *model.FetchResult {
	start := time.Now()
	res := c.fetch(ctx, rawURL, header)
	duration := time.Since(start)

	if c.metrics != nil {
		status := ""
		if res.Outcome == model.OutcomeSuccess {
			status = strconv.Itoa(res.StatusCode)
		}
		c.metrics.UpstreamDuration.WithLabelValues(res.Outcome.String()).Observe(duration.Seconds())
		c.metrics.UpstreamOutcomes.WithLabelValues(res.Outcome.String(), status).Inc()
	}

	c.logger.Debug("upstream fetch",
		"outcome", res.Outcome.String(),
		"status", res.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	return res
}

func (c *OriginClient) fetch(ctx context.Context, rawURL string, header http.Header) *model.FetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return &model.FetchResult{
			Outcome: model.OutcomeConnectionError,
			Err:     fmt.Errorf("build upstream request: %w", err),
		}
	}
	if header != nil {
		req.Header = header.Clone()
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.FetchResult{Outcome: Classify(err), Err: fmt.Errorf("upstream request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.FetchResult{Outcome: Classify(err), Err: fmt.Errorf("read upstream body: %w", err)}
	}

	return &model.FetchResult{
		Outcome:    model.OutcomeSuccess,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
}

// Classify maps a transport error to a fetch outcome. Redirect exhaustion is
// checked first, then certificate and handshake failures, then timeouts; any
// other failure (refused, unreachable, DNS, reset, cancelled) is a connection
// error.
func Classify(err error) model.Outcome {
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return model.OutcomeTooManyRedirects
	case isTLSError(err):
		return model.OutcomeSSLError
	case isTimeout(err):
		return model.OutcomeTimeout
	default:
		return model.OutcomeConnectionError
	}
}

func isTLSError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
	)
	if errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) {
		return true
	}

	// Alerts sent by the peer surface as an OpError with this Op.
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "remote error"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
