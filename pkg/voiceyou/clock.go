package voiceyou

import "time"

// Ticker is the subset of *time.Ticker the session relies on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock supplies wall time and periodic callbacks.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

type systemTicker struct {
	t *time.Ticker
}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }

func (s *systemTicker) Stop() { s.t.Stop() }

// SystemClock is backed by the time package.
var SystemClock Clock = systemClock{}
