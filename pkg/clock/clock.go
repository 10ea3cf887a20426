package clock

import "time"

// Clock abstracts wall-clock reads so expiry and threshold comparisons are
// deterministic under test. All engine times are UTC.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the real UTC clock.
func System() Clock { return systemClock{} }

// Fixed returns a clock pinned to t.
func Fixed(t time.Time) Clock { return fixedClock{t: t.UTC()} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }
