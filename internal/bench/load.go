package bench

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// LoadResult summarises one load run.
type LoadResult struct {
	Requests       int64
	Failures       int64
	Elapsed        time.Duration
	RequestsPerSec float64
}

// RunLoad keeps concurrency workers issuing GETs against url for duration.
// Only 2xx responses count as completed requests; everything else is a
// failure, as wrk reports non-2xx separately.
func RunLoad(ctx context.Context, client *http.Client, url string, duration time.Duration, concurrency int) (LoadResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var completed, failed atomic.Int64
	g, gctx := errgroup.WithContext(runCtx)

	for range concurrency {
		g.Go(func() error {
			for gctx.Err() == nil {
				err := hit(gctx, client, url)
				switch {
				case err == nil:
					completed.Add(1)
				case gctx.Err() != nil:
					// Cut off by the end of the run.
				default:
					failed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}

	res := LoadResult{
		Requests: completed.Load(),
		Failures: failed.Load(),
		Elapsed:  elapsed,
	}
	if elapsed > 0 {
		res.RequestsPerSec = float64(res.Requests) / elapsed.Seconds()
	}
	return res, nil
}

var errNon2xx = errors.New("non-2xx response")

func hit(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errNon2xx
	}
	return nil
}
