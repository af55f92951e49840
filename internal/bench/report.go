package bench

import (
	"fmt"
	"io"
	"sort"
)

// Result is the outcome of benchmarking one server command.
type Result struct {
	Command        string
	RequestsPerSec float64
	Err            error
}

// SortResults orders successful results fastest first, followed by failed
// commands in their original order.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		return a.RequestsPerSec > b.RequestsPerSec
	})
}

// WriteReport prints one line per result, fastest first.
func WriteReport(w io.Writer, results []Result) error {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	SortResults(sorted)

	for _, r := range sorted {
		var err error
		if r.Err != nil {
			_, err = fmt.Fprintf(w, "%10s | %s (%v)\n", "failed", r.Command, r.Err)
		} else {
			_, err = fmt.Fprintf(w, "%10.2f | %s\n", r.RequestsPerSec, r.Command)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
