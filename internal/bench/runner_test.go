package bench_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"minij-proxy-go/internal/bench"
)

// fakeServer stands in for a server process by serving HTTP in-process.
type fakeServer struct {
	srv     *http.Server
	stopped bool
}

func (f *fakeServer) Stop(time.Duration) (bool, error) {
	f.stopped = true
	return false, f.srv.Close()
}

var _ = Describe("Runner", func() {
	var (
		addr     string
		settings bench.Settings
		started  map[string]*fakeServer
		start    bench.StartFunc
	)

	BeforeEach(func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr = ln.Addr().String()
		Expect(ln.Close()).To(Succeed())

		settings = bench.Settings{
			TargetURL:    "http://" + addr + "/?url=http://localhost:8001/",
			Duration:     200 * time.Millisecond,
			Concurrency:  2,
			ReadyTimeout: 2 * time.Second,
			PollInterval: 10 * time.Millisecond,
			Grace:        time.Second,
		}

		started = make(map[string]*fakeServer)
		start = func(command string) (bench.Server, error) {
			if command == "broken" {
				return nil, errors.New("exec: \"broken\": executable file not found")
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return nil, err
			}
			srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<p>proxied</p>"))
			})}
			go func() { _ = srv.Serve(ln) }()
			f := &fakeServer{srv: srv}
			started[command] = f
			return f, nil
		}
	})

	newRunner := func() *bench.Runner {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		return bench.NewRunner(settings, logger).WithStart(start)
	}

	It("should measure every command and keep going after a failure", func() {
		results := newRunner().Run(context.Background(), []string{"first", "broken", "second"})

		Expect(results).To(HaveLen(3))
		Expect(results[0].Command).To(Equal("first"))
		Expect(results[0].Err).NotTo(HaveOccurred())
		Expect(results[0].RequestsPerSec).To(BeNumerically(">", 0))

		Expect(results[1].Command).To(Equal("broken"))
		Expect(results[1].Err).To(HaveOccurred())

		Expect(results[2].Err).NotTo(HaveOccurred())
		Expect(results[2].RequestsPerSec).To(BeNumerically(">", 0))

		Expect(started["first"].stopped).To(BeTrue())
		Expect(started["second"].stopped).To(BeTrue())
	})

	It("should refuse to measure while something already answers on the target", func() {
		ln, err := net.Listen("tcp", addr)
		Expect(err).NotTo(HaveOccurred())
		squatter := &http.Server{Handler: http.NotFoundHandler()}
		go func() { _ = squatter.Serve(ln) }()
		DeferCleanup(squatter.Close)

		results := newRunner().Run(context.Background(), []string{"first"})

		Expect(results).To(HaveLen(1))
		Expect(results[0].Err).To(MatchError(bench.ErrServerRunning))
		Expect(started).To(BeEmpty())
	})

	It("should fail a server that never becomes ready and still stop it", func() {
		settings.ReadyTimeout = 200 * time.Millisecond
		start = func(string) (bench.Server, error) {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return nil, err
			}
			srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})}
			go func() { _ = srv.Serve(ln) }()
			f := &fakeServer{srv: srv}
			started["unready"] = f
			return f, nil
		}

		results := newRunner().Run(context.Background(), []string{"unready"})

		Expect(results[0].Err).To(MatchError(context.DeadlineExceeded))
		Expect(started["unready"].stopped).To(BeTrue())
	})

	It("should not start anything once cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(newRunner().Run(ctx, []string{"first"})).To(BeEmpty())
		Expect(started).To(BeEmpty())
	})
})
