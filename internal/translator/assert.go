package translator

import "fmt"

// assertf panics on a broken translator invariant. These indicate logic defects, never bad input.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("translator: invariant violated: "+format, args...))
	}
}
