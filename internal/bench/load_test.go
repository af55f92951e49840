package bench_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"minij-proxy-go/internal/bench"
)

var _ = Describe("RunLoad", func() {
	var client *http.Client

	BeforeEach(func() {
		client = &http.Client{Timeout: time.Second}
	})

	It("should count completed requests for the whole duration", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		DeferCleanup(srv.Close)

		res, err := bench.RunLoad(context.Background(), client, srv.URL, 300*time.Millisecond, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Requests).To(BeNumerically(">", 0))
		Expect(res.Failures).To(BeZero())
		Expect(res.Elapsed).To(BeNumerically(">=", 300*time.Millisecond))
		Expect(res.RequestsPerSec).To(BeNumerically(">", 0))
	})

	It("should count non-2xx responses as failures", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(520)
		}))
		DeferCleanup(srv.Close)

		res, err := bench.RunLoad(context.Background(), client, srv.URL, 200*time.Millisecond, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Requests).To(BeZero())
		Expect(res.Failures).To(BeNumerically(">", 0))
	})

	It("should stop early when the caller cancels", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		DeferCleanup(srv.Close)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(100*time.Millisecond, cancel)

		start := time.Now()
		_, err := bench.RunLoad(ctx, client, srv.URL, 10*time.Second, 2)
		Expect(err).To(MatchError(context.Canceled))
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
	})
})
