package bench

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// ErrNoThroughput is returned when wrk output carries no Requests/sec line.
var ErrNoThroughput = errors.New("no Requests/sec line in wrk output")

var requestsPerSecPattern = regexp.MustCompile(`(?m)^Requests/sec:\s*([0-9.]+)`)

// RunWrk runs the external wrk load generator against url and returns the
// measured requests per second.
func RunWrk(ctx context.Context, wrkPath string, threads int, duration time.Duration, url string) (float64, error) {
	seconds := int(duration.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	cmd := exec.CommandContext(ctx, wrkPath,
		"-t", strconv.Itoa(threads),
		"-d", strconv.Itoa(seconds),
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("run wrk: %w", err)
	}
	return ParseRequestsPerSecond(out)
}

// ParseRequestsPerSecond extracts the throughput figure from wrk's summary.
func ParseRequestsPerSecond(out []byte) (float64, error) {
	m := requestsPerSecPattern.FindSubmatch(out)
	if m == nil {
		return 0, ErrNoThroughput
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", m[1], err)
	}
	return v, nil
}
