package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Settings control a benchmark run.
type Settings struct {
	// TargetURL is requested through each server under test; it normally
	// names the static origin in its url parameter.
	TargetURL    string
	Duration     time.Duration
	Concurrency  int
	WrkPath      string // external wrk binary; empty uses the built-in generator
	WrkThreads   int
	ReadyTimeout time.Duration
	PollInterval time.Duration
	Grace        time.Duration
	Settle       time.Duration
	ServerOutput io.Writer
}

// Server is a started server under test.
type Server interface {
	Stop(grace time.Duration) (forced bool, err error)
}

// StartFunc launches one server command.
type StartFunc func(command string) (Server, error)

// Runner benchmarks server commands one after another.
type Runner struct {
	settings Settings
	client   *http.Client
	logger   *slog.Logger
	start    StartFunc
}

// NewRunner creates a Runner that launches commands as OS processes.
func NewRunner(s Settings, logger *slog.Logger) *Runner {
	r := &Runner{
		settings: s,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        s.Concurrency,
				MaxIdleConnsPerHost: s.Concurrency,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger.With("component", "bench_runner"),
	}
	r.start = func(command string) (Server, error) {
		p, err := StartProcess(command, s.ServerOutput, s.ServerOutput)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return r
}

// WithStart replaces how commands are launched.
func (r *Runner) WithStart(start StartFunc) *Runner {
	r.start = start
	return r
}

// Run benchmarks every command. A failing command is recorded and the run
// moves on; only cancellation of ctx stops it early.
func (r *Runner) Run(ctx context.Context, commands []string) []Result {
	results := make([]Result, 0, len(commands))

	for i, command := range commands {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && !sleepCtx(ctx, r.settings.Settle) {
			break
		}

		rps, err := r.runOne(ctx, command)
		if err != nil {
			r.logger.Error("benchmark failed", "command", command, "err", err)
		} else {
			r.logger.Info("benchmark done", "command", command, "requests_per_sec", rps)
		}
		results = append(results, Result{Command: command, RequestsPerSec: rps, Err: err})
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, command string) (rps float64, err error) {
	s := r.settings

	if err := AssertStopped(ctx, r.client, s.TargetURL); err != nil {
		return 0, err
	}

	r.logger.Info("starting server", "command", command)
	srv, err := r.start(command)
	if err != nil {
		return 0, err
	}
	defer func() {
		forced, stopErr := srv.Stop(s.Grace)
		if forced {
			r.logger.Warn("server ignored SIGTERM, killed", "command", command)
		}
		if stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	readyCtx, cancel := context.WithTimeout(ctx, s.ReadyTimeout)
	defer cancel()
	if err := WaitReady(readyCtx, r.client, s.TargetURL, s.PollInterval); err != nil {
		return 0, err
	}

	if s.WrkPath != "" {
		return RunWrk(ctx, s.WrkPath, s.WrkThreads, s.Duration, s.TargetURL)
	}

	res, err := RunLoad(ctx, r.client, s.TargetURL, s.Duration, s.Concurrency)
	if err != nil {
		return 0, err
	}
	if res.Requests == 0 {
		return 0, fmt.Errorf("no successful requests (%d failures)", res.Failures)
	}
	if res.Failures > 0 {
		r.logger.Warn("failed requests during load", "command", command, "failures", res.Failures)
	}
	return res.RequestsPerSec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
