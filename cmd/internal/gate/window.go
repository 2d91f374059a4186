package gate

import "time"

// DefaultArrivalWindow is the buffer applied on both sides of an expected
// arrival time.
const DefaultArrivalWindow = 60 * time.Minute

// Within reports whether now falls inside [expected-buffer, expected+buffer].
// A visit with no expected arrival is always within the window.
func Within(expected *time.Time, now time.Time, buffer time.Duration) bool {
	if expected == nil {
		return true
	}
	if buffer <= 0 {
		buffer = DefaultArrivalWindow
	}
	lo := expected.Add(-buffer)
	hi := expected.Add(buffer)
	return !now.Before(lo) && !now.After(hi)
}
