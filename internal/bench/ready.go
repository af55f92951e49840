package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrServerRunning is returned by AssertStopped when something already
// answers on the target URL.
var ErrServerRunning = errors.New("a server is already answering on the target URL")

// AssertStopped fails if any HTTP response comes back from url. A previous
// run that did not shut down would otherwise be measured in place of the
// next command.
func AssertStopped(ctx context.Context, client *http.Client, url string) error {
	status, err := probe(ctx, client, url)
	if err != nil {
		return nil
	}
	return fmt.Errorf("%w (status %d)", ErrServerRunning, status)
}

// WaitReady polls url every interval until it answers 200 or ctx is done.
func WaitReady(ctx context.Context, client *http.Client, url string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := probe(ctx, client, url)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusOK:
			return nil
		default:
			lastErr = fmt.Errorf("status %d", status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w (last probe: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
