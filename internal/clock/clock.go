package clock

import "time"

// Clock abstracts wall time so transitions stamped with "now" stay testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func Provide() Clock {
	return SystemClock{}
}
