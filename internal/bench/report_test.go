package bench_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"minij-proxy-go/internal/bench"
)

var _ = Describe("Report", func() {
	var results []bench.Result

	BeforeEach(func() {
		results = []bench.Result{
			{Command: "slow", RequestsPerSec: 100},
			{Command: "broken", Err: errors.New("did not start")},
			{Command: "fast", RequestsPerSec: 900.5},
			{Command: "medium", RequestsPerSec: 450},
		}
	})

	Describe("SortResults", func() {
		It("should order successful results fastest first and failures last", func() {
			bench.SortResults(results)

			var order []string
			for _, r := range results {
				order = append(order, r.Command)
			}
			Expect(order).To(Equal([]string{"fast", "medium", "slow", "broken"}))
		})
	})

	Describe("WriteReport", func() {
		It("should print one aligned line per command", func() {
			var buf bytes.Buffer
			Expect(bench.WriteReport(&buf, results)).To(Succeed())

			Expect(buf.String()).To(Equal(
				"    900.50 | fast\n" +
					"    450.00 | medium\n" +
					"    100.00 | slow\n" +
					"    failed | broken (did not start)\n",
			))
		})

		It("should not reorder the caller's slice", func() {
			var buf bytes.Buffer
			Expect(bench.WriteReport(&buf, results)).To(Succeed())
			Expect(results[0].Command).To(Equal("slow"))
		})
	})
})
