package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TimeControl is a Fischer time control in integer milliseconds.
// InitialMs == 0 means unlimited.
type TimeControl struct {
	InitialMs   int64 `json:"initial_ms"`
	IncrementMs int64 `json:"increment_ms"`
}

const (
	minuteMs = int64(60 * 1000)
	secondMs = int64(1000)
)

var presets = map[string]TimeControl{
	"unlimited": {},
	"none":      {},
	"bullet":    {InitialMs: 1 * minuteMs},
	"blitz":     {InitialMs: 3 * minuteMs, IncrementMs: 2 * secondMs},
	"rapid":     {InitialMs: 10 * minuteMs},
	"classical": {InitialMs: 30 * minuteMs, IncrementMs: 20 * secondMs},
}

func (tc TimeControl) Unlimited() bool { return tc.InitialMs <= 0 }

// String renders the control as "minutes+seconds", or "unlimited".
func (tc TimeControl) String() string {
	if tc.Unlimited() {
		return "unlimited"
	}
	base := strconv.FormatInt(tc.InitialMs/minuteMs, 10)
	if rem := tc.InitialMs % minuteMs; rem != 0 {
		base = strconv.FormatFloat(float64(tc.InitialMs)/float64(minuteMs), 'f', -1, 64)
	}
	return base + "+" + strconv.FormatInt(tc.IncrementMs/secondMs, 10)
}

// ParseTimeControl accepts a preset name ("blitz"), "M+S" (minutes plus increment seconds,
// e.g. "3+2"), or raw milliseconds as a bare integer or with an "ms" suffix ("600000ms").
func ParseTimeControl(s string) (TimeControl, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return TimeControl{}, fmt.Errorf("empty time control")
	}
	if tc, ok := presets[v]; ok {
		return tc, nil
	}
	minPart, incPart, hasInc := strings.Cut(v, "+")
	if !hasInc {
		ms, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(v, "ms")), 10, 64)
		if err != nil || ms < 0 {
			return TimeControl{}, fmt.Errorf("invalid time control %q", s)
		}
		return TimeControl{InitialMs: ms}, nil
	}

	minutes, err := strconv.ParseFloat(strings.TrimSpace(minPart), 64)
	if err != nil || math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 || minutes > float64(math.MaxInt64/minuteMs) {
		return TimeControl{}, fmt.Errorf("invalid time control %q", s)
	}
	inc, err := strconv.ParseInt(strings.TrimSpace(incPart), 10, 64)
	if err != nil || inc < 0 || inc > math.MaxInt64/secondMs {
		return TimeControl{}, fmt.Errorf("invalid increment in %q", s)
	}
	tc := TimeControl{InitialMs: int64(minutes * float64(minuteMs)), IncrementMs: inc * secondMs}
	if tc.Unlimited() {
		tc.IncrementMs = 0
	}
	return tc, nil
}
