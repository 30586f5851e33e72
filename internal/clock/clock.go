// Package clock implements the per-color chess countdown.
//
// Values are integer milliseconds. Only one side runs at a time; the running side's
// remaining time is computed from the wall clock on every read and never goes negative.
package clock

import (
	"time"

	"github.com/park285/cheese-match/internal/domain"
)

type Clock struct {
	tc        domain.TimeControl
	white     int64
	black     int64
	running   domain.Color
	startedAt time.Time
	now       func() time.Time
}

// State is the persistable form of a Clock.
type State struct {
	WhiteMs     int64        `json:"white_ms"`
	BlackMs     int64        `json:"black_ms"`
	Running     domain.Color `json:"running,omitempty"`
	StartedAtMs int64        `json:"started_at_ms,omitempty"`
}

func New(tc domain.TimeControl, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{tc: tc, white: tc.InitialMs, black: tc.InitialMs, now: now}
}

func (c *Clock) TimeControl() domain.TimeControl { return c.tc }

// Running reports the running color, or "" when frozen.
func (c *Clock) Running() domain.Color { return c.running }

// Start marks color as running. No-op while any side runs.
func (c *Clock) Start(color domain.Color) {
	if c.running != "" || !color.Valid() {
		return
	}
	c.running = color
	c.startedAt = c.now()
}

// Stop freezes color at its live value. No-op unless color is the running side.
func (c *Clock) Stop(color domain.Color) {
	if c.running == "" || c.running != color {
		return
	}
	c.store(color, c.live(color))
	c.running = ""
	c.startedAt = time.Time{}
}

// SwitchTurn stops the side that just moved, credits its increment and starts the other side.
func (c *Clock) SwitchTurn() {
	mover := c.running
	if mover == "" {
		return
	}
	c.Stop(mover)
	if !c.tc.Unlimited() {
		c.store(mover, c.stored(mover)+c.tc.IncrementMs)
	}
	c.Start(mover.Other())
}

// Freeze stops whichever side is running.
func (c *Clock) Freeze() {
	if c.running != "" {
		c.Stop(c.running)
	}
}

// Remaining returns color's live remaining time, floored at zero.
func (c *Clock) Remaining(color domain.Color) int64 { return c.live(color) }

// Expired reports whether color is running and out of time.
func (c *Clock) Expired(color domain.Color) bool {
	if c.tc.Unlimited() || c.running != color {
		return false
	}
	return c.live(color) <= 0
}

// Deadline returns when the running side flags.
func (c *Clock) Deadline() (time.Time, bool) {
	if c.tc.Unlimited() || c.running == "" {
		return time.Time{}, false
	}
	return c.startedAt.Add(time.Duration(c.stored(c.running)) * time.Millisecond), true
}

func (c *Clock) State() State {
	st := State{WhiteMs: c.white, BlackMs: c.black, Running: c.running}
	if c.running != "" {
		st.StartedAtMs = c.startedAt.UnixMilli()
	}
	return st
}

// Restore replaces the clock's state. A running side keeps draining from StartedAtMs.
func (c *Clock) Restore(st State) {
	c.white, c.black = max(st.WhiteMs, 0), max(st.BlackMs, 0)
	c.running = ""
	c.startedAt = time.Time{}
	if st.Running.Valid() {
		c.running = st.Running
		c.startedAt = time.UnixMilli(st.StartedAtMs)
	}
}

func (c *Clock) live(color domain.Color) int64 {
	v := c.stored(color)
	if c.running == color && !c.tc.Unlimited() {
		v -= c.now().Sub(c.startedAt).Milliseconds()
	}
	if v < 0 {
		return 0
	}
	return v
}

func (c *Clock) stored(color domain.Color) int64 {
	if color == domain.White {
		return c.white
	}
	return c.black
}

func (c *Clock) store(color domain.Color, v int64) {
	if v < 0 {
		v = 0
	}
	if color == domain.White {
		c.white = v
	} else {
		c.black = v
	}
}
