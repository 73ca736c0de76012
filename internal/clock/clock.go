package clock

import "time"

// Clock abstracts time so state machines and gates can be tested
// deterministically. Now is always UTC; LocalNow is in the exchange
// timezone and feeds the quiet-hours and market-hours gates.
type Clock interface {
	Now() time.Time
	LocalNow() time.Time
}

type realClock struct {
	loc *time.Location
}

// New returns a wall clock with LocalNow in the given exchange timezone.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &realClock{loc: loc}
}

func (c *realClock) Now() time.Time      { return time.Now().UTC() }
func (c *realClock) LocalNow() time.Time { return time.Now().In(c.loc) }

// Fake is a manually advanced clock for tests.
type Fake struct {
	Current time.Time
	Loc     *time.Location
}

// NewFake starts a fake clock at the given UTC instant.
func NewFake(t time.Time) *Fake {
	return &Fake{Current: t.UTC(), Loc: time.UTC}
}

func (f *Fake) Now() time.Time { return f.Current }

func (f *Fake) LocalNow() time.Time {
	loc := f.Loc
	if loc == nil {
		loc = time.UTC
	}
	return f.Current.In(loc)
}

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) { f.Current = f.Current.Add(d) }
