package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pelletier/go-toml/v2"

	"minij-proxy-go/internal/bench"
)

const defaultTarget = "http://localhost:8000/?url=http://localhost:8001/"

// cli holds the benchmark command line.
type cli struct {
	Commands []string `kong:"arg,optional,help='Server commands to benchmark, one per argument.'"`
	Plan     string   `kong:"short='f',type='existingfile',help='TOML file with a commands list.'"`

	Target       string        `kong:"default='${target}',help='URL requested through each server.'"`
	Duration     time.Duration `kong:"short='d',default='5s',help='Load duration per command.'"`
	Concurrency  int           `kong:"short='c',default='10',help='Concurrent workers of the built-in load generator.'"`
	Wrk          string        `kong:"help='Path to wrk; when set wrk drives the load instead of the built-in generator.'"`
	Threads      int           `kong:"short='t',default='10',help='wrk threads.'"`
	ReadyTimeout time.Duration `kong:"default='10s',help='How long to wait for a server to answer 200.'"`
	Grace        time.Duration `kong:"default='5s',help='Time between SIGTERM and SIGKILL.'"`
	Settle       time.Duration `kong:"default='1s',help='Pause between commands.'"`

	OriginAddr string `kong:"default='localhost:8001',help='Listen address of the static origin.'"`
	OriginFile string `kong:"type='existingfile',help='Serve this file as the static origin for the run.'"`

	ServerOutput bool   `kong:"help='Pass server stdout and stderr through.'"`
	LogLevel     string `kong:"default='info',enum='debug,info,warn,error',help='Log level.'"`
}

// plan is the on-disk form of a benchmark run.
type plan struct {
	Commands []string `toml:"commands"`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("minij-bench"),
		kong.Description("Compare request throughput of proxy server commands."),
		kong.Vars{"target": defaultTarget},
	)

	logger := newLogger(c.LogLevel)

	if err := run(c, logger); err != nil {
		logger.Error("benchmark aborted", "err", err)
		kctx.Exit(1)
	}
}

func run(c cli, logger *slog.Logger) error {
	commands, err := loadCommands(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.OriginFile != "" {
		shutdown, err := startOrigin(c.OriginAddr, c.OriginFile, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var output io.Writer
	if c.ServerOutput {
		output = os.Stderr
	}

	runner := bench.NewRunner(bench.Settings{
		TargetURL:    c.Target,
		Duration:     c.Duration,
		Concurrency:  c.Concurrency,
		WrkPath:      c.Wrk,
		WrkThreads:   c.Threads,
		ReadyTimeout: c.ReadyTimeout,
		PollInterval: 100 * time.Millisecond,
		Grace:        c.Grace,
		Settle:       c.Settle,
		ServerOutput: output,
	}, logger)

	results := runner.Run(ctx, commands)
	return bench.WriteReport(os.Stdout, results)
}

func loadCommands(c cli) ([]string, error) {
	commands := append([]string(nil), c.Commands...)
	if c.Plan != "" {
		data, err := os.ReadFile(c.Plan)
		if err != nil {
			return nil, fmt.Errorf("read plan: %w", err)
		}
		var p plan
		if err := toml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan %s: %w", c.Plan, err)
		}
		commands = append(commands, p.Commands...)
	}
	if len(commands) == 0 {
		return nil, errors.New("no server commands given")
	}
	return commands, nil
}

func startOrigin(addr, file string, logger *slog.Logger) (func(), error) {
	origin, err := bench.LoadStaticOrigin(file)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind origin %s: %w", addr, err)
	}

	logger.Info("starting static origin", "addr", addr, "file", file)
	go func() {
		if err := origin.Serve(ln); err != nil {
			logger.Error("origin error", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := origin.Shutdown(ctx); err != nil {
			logger.Warn("origin shutdown", "err", err)
		}
	}, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
