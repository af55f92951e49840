package bench_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"minij-proxy-go/internal/bench"
)

const indexHTML = "<!doctype html><title>mynij</title><p>static origin</p>"

func get(url string) (*http.Response, string) {
	resp, err := http.Get(url)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(body)
}

var _ = Describe("StaticOrigin", func() {
	Describe("Handler", func() {
		var srv *httptest.Server

		BeforeEach(func() {
			srv = httptest.NewServer(bench.NewStaticOrigin([]byte(indexHTML)).Handler())
			DeferCleanup(srv.Close)
		})

		DescribeTable("should serve the file as text/html for every path",
			func(path string) {
				resp, body := get(srv.URL + path)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("text/html"))
				Expect(body).To(Equal(indexHTML))
			},
			Entry("root", "/"),
			Entry("file", "/index.html"),
			Entry("nested", "/a/b/c?x=1"),
		)
	})

	Describe("LoadStaticOrigin", func() {
		It("should read the file once", func() {
			path := filepath.Join(GinkgoT().TempDir(), "index.html")
			Expect(os.WriteFile(path, []byte(indexHTML), 0o644)).To(Succeed())

			o, err := bench.LoadStaticOrigin(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Remove(path)).To(Succeed())

			srv := httptest.NewServer(o.Handler())
			DeferCleanup(srv.Close)
			_, body := get(srv.URL)
			Expect(body).To(Equal(indexHTML))
		})

		It("should fail for a missing file", func() {
			_, err := bench.LoadStaticOrigin(filepath.Join(GinkgoT().TempDir(), "nope.html"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Serve and Shutdown", func() {
		It("should stop serving after shutdown", func() {
			o := bench.NewStaticOrigin([]byte(indexHTML))
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())

			served := make(chan error, 1)
			go func() { served <- o.Serve(ln) }()

			resp, _ := get("http://" + ln.Addr().String() + "/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(o.Shutdown(ctx)).To(Succeed())
			Eventually(served).Should(Receive(BeNil()))
		})
	})
})
