package estimate

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format writes the per-step diagnostic table of r followed by the estimate,
// one fixed-width column per value:
//
//	Step         beta        diff-posterior contribution ESS
//	0            1           -1.2345       0.0123      512.3
//	...
//
//	Bayes factor estimate = -2.5
func (r *Result) Format(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\nStep         beta        diff-posterior contribution ESS\n")
	for _, s := range r.Steps {
		for _, v := range []float64{float64(s.Step), s.Beta, s.Mean, s.Contribution, s.ESS} {
			fmt.Fprintf(&b, "%-12s ", formatValue(v))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nBayes factor estimate = %v\n", r.LogBayesFactor)
	_, err := io.WriteString(w, b.String())
	return err
}

// formatValue renders v with at most four decimals and no trailing zeros.
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
