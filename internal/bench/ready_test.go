package bench_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"minij-proxy-go/internal/bench"
)

// closedURL returns a URL on a port nothing listens on.
func closedURL() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	addr := ln.Addr().String()
	Expect(ln.Close()).To(Succeed())
	return "http://" + addr + "/"
}

var _ = Describe("Readiness", func() {
	var client *http.Client

	BeforeEach(func() {
		client = &http.Client{Timeout: time.Second}
	})

	Describe("AssertStopped", func() {
		It("should pass when nothing listens", func() {
			Expect(bench.AssertStopped(context.Background(), client, closedURL())).To(Succeed())
		})

		It("should fail when a server answers, whatever its status", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			DeferCleanup(srv.Close)

			err := bench.AssertStopped(context.Background(), client, srv.URL)
			Expect(err).To(MatchError(bench.ErrServerRunning))
		})
	})

	Describe("WaitReady", func() {
		It("should return once the server answers 200", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			DeferCleanup(srv.Close)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			DeferCleanup(cancel)

			Expect(bench.WaitReady(ctx, client, srv.URL, 10*time.Millisecond)).To(Succeed())
			Expect(calls.Load()).To(BeNumerically(">=", 3))
		})

		It("should give up when the context expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			DeferCleanup(cancel)

			err := bench.WaitReady(ctx, client, closedURL(), 20*time.Millisecond)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})
})
