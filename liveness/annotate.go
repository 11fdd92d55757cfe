package liveness

import (
	"github.com/simon-1M/closurec/ir"
)

// Annotate renders fn's listing with the set of temporaries live after each
// instruction, as a "# live vars: $t0, $t2" line.
func Annotate(r *Result) string {
	return ir.FormatWith(r.fn, "live vars", func(l ir.Label, i int) []string {
		live := r.LiveAfter(l, i)
		if live.Len() == 0 {
			return []string{"live vars:"}
		}
		return []string{"live vars: " + live.String()}
	})
}
