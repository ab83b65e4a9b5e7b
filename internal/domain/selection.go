package domain

import "time"

// Timed is anything that was measured and either worked or not.
type Timed interface {
	OK() bool
	Took() time.Duration
}

// SelectFastest returns the index of the successful entry with the smallest
// duration, or -1 when nothing succeeded. On ties the earliest index wins, so
// the result only depends on the measurements and never on settle order.
func SelectFastest[T Timed](results []T) int {
	best := -1
	for i, r := range results {
		if !r.OK() {
			continue
		}
		if best == -1 || r.Took() < results[best].Took() {
			best = i
		}
	}
	return best
}
