//go:build unix

package bench_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"minij-proxy-go/internal/bench"
)

func writeScript(body string) string {
	path := filepath.Join(GinkgoT().TempDir(), "server.sh")
	Expect(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)).To(Succeed())
	return path
}

var _ = Describe("Process", func() {
	It("should reject an empty command", func() {
		_, err := bench.StartProcess("   ", nil, nil)
		Expect(err).To(MatchError(bench.ErrEmptyCommand))
	})

	It("should reject an unterminated quote", func() {
		_, err := bench.StartProcess(`sleep "30`, nil, nil)
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(bench.ErrEmptyCommand))
	})

	It("should pass quoted arguments as single words", func() {
		argsFile := filepath.Join(GinkgoT().TempDir(), "args")
		script := writeScript(`printf '%s|' "$@" > ` + argsFile + "
")

		p, err := bench.StartProcess(script+` 'hello world' "--bind 0.0.0.0:8000" plain`, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Eventually(p.Exited).Should(BeTrue())

		got, err := os.ReadFile(argsFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal("hello world|--bind 0.0.0.0:8000|plain|"))
	})

	It("should report a missing program", func() {
		_, err := bench.StartProcess("/nonexistent/minij-server --port 8000", nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should stop a cooperative server with SIGTERM", func() {
		p, err := bench.StartProcess("sleep 30", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Pid()).To(BeNumerically(">", 0))
		Expect(p.Exited()).To(BeFalse())

		forced, err := p.Stop(5 * time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(forced).To(BeFalse())
		Expect(p.Exited()).To(BeTrue())
	})

	It("should kill a server that ignores SIGTERM after the grace period", func() {
		script := writeScript("trap '' TERM\nsleep 30\n")
		p, err := bench.StartProcess(script, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		// Give the shell time to install the trap.
		time.Sleep(200 * time.Millisecond)

		start := time.Now()
		forced, err := p.Stop(300 * time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(forced).To(BeTrue())
		Expect(p.Exited()).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
	})

	It("should treat an already exited server as stopped", func() {
		p, err := bench.StartProcess("true", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Eventually(p.Exited).Should(BeTrue())

		forced, err := p.Stop(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(forced).To(BeFalse())
	})
})
