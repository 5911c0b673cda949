package session

import "time"

// Clock abstracts wall-clock access so timer and countdown behaviour can be
// tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock used in production.
func SystemClock() Clock { return systemClock{} }
