package clock

import (
	"testing"
	"time"

	"github.com/park285/cheese-match/internal/domain"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClock(initial, inc int64) (*Clock, *fakeNow) {
	fn := &fakeNow{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(domain.TimeControl{InitialMs: initial, IncrementMs: inc}, fn.now), fn
}

func TestOnlyOneSideRuns(t *testing.T) {
	c, fn := newClock(60000, 0)
	c.Start(domain.White)
	c.Start(domain.Black) // ignored
	if c.Running() != domain.White {
		t.Fatalf("running = %q", c.Running())
	}
	fn.advance(1500 * time.Millisecond)
	if got := c.Remaining(domain.White); got != 58500 {
		t.Fatalf("white remaining = %d", got)
	}
	if got := c.Remaining(domain.Black); got != 60000 {
		t.Fatalf("black must be frozen, got %d", got)
	}
}

func TestSwitchTurnAppliesIncrementToMover(t *testing.T) {
	c, fn := newClock(60000, 2000)
	c.Start(domain.White)
	fn.advance(5 * time.Second)
	c.SwitchTurn()
	if c.Running() != domain.Black {
		t.Fatalf("black should run after switch")
	}
	if got := c.Remaining(domain.White); got != 57000 {
		t.Fatalf("white remaining = %d, want 57000", got)
	}
	fn.advance(10 * time.Second)
	if got := c.Remaining(domain.White); got != 57000 {
		t.Fatalf("white must stay frozen, got %d", got)
	}
	if got := c.Remaining(domain.Black); got != 50000 {
		t.Fatalf("black remaining = %d", got)
	}
}

func TestRemainingFloorsAtZeroAndExpires(t *testing.T) {
	c, fn := newClock(1000, 0)
	c.Start(domain.Black)
	if c.Expired(domain.Black) {
		t.Fatalf("fresh clock expired")
	}
	fn.advance(3 * time.Second)
	if got := c.Remaining(domain.Black); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
	if !c.Expired(domain.Black) {
		t.Fatalf("expected black to be expired")
	}
	if c.Expired(domain.White) {
		t.Fatalf("non-running side cannot expire")
	}
	c.Freeze()
	if c.Running() != "" || c.Remaining(domain.Black) != 0 {
		t.Fatalf("freeze must stop at zero")
	}
}

func TestDeadlineAndUnlimited(t *testing.T) {
	c, fn := newClock(10000, 0)
	c.Start(domain.White)
	fn.advance(4 * time.Second)
	dl, ok := c.Deadline()
	if !ok || !dl.Equal(fn.t.Add(6*time.Second)) {
		t.Fatalf("deadline = %v %v", dl, ok)
	}

	u, ufn := newClock(0, 0)
	u.Start(domain.White)
	ufn.advance(time.Hour)
	if u.Expired(domain.White) {
		t.Fatalf("unlimited clock must never expire")
	}
	if _, ok := u.Deadline(); ok {
		t.Fatalf("unlimited clock has no deadline")
	}
}

func TestStateRoundTripKeepsDraining(t *testing.T) {
	c, fn := newClock(30000, 0)
	c.Start(domain.White)
	fn.advance(2 * time.Second)
	st := c.State()

	r := New(domain.TimeControl{InitialMs: 30000}, fn.now)
	r.Restore(st)
	fn.advance(3 * time.Second)
	if got := r.Remaining(domain.White); got != 25000 {
		t.Fatalf("restored remaining = %d, want 25000", got)
	}
}
