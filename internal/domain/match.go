package domain

import "time"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// Role is what a participant holds in a game.
type Role string

const (
	RoleWhite    Role = "white"
	RoleBlack    Role = "black"
	RoleObserver Role = "observer"
)

// Color returns the seat color for seated roles.
func (r Role) Color() (Color, bool) {
	switch r {
	case RoleWhite:
		return White, true
	case RoleBlack:
		return Black, true
	default:
		return "", false
	}
}

func RoleOf(c Color) Role {
	if c == White {
		return RoleWhite
	}
	return RoleBlack
}

// Reason explains why a game ended.
type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonStalemate            Reason = "stalemate"
	ReasonInsufficientMaterial Reason = "insufficient_material"
	ReasonFivefoldRepetition   Reason = "fivefold_repetition"
	ReasonSeventyFiveMoveRule  Reason = "seventy_five_move_rule"
	ReasonResignation          Reason = "resignation"
	ReasonTimeout              Reason = "timeout"
	ReasonAgreement            Reason = "agreement"
)

// Result is the terminal outcome of a game. Winner is empty for draws.
type Result struct {
	Winner Color  `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
	Reason Reason `json:"reason"`
}

func WinFor(c Color, reason Reason) *Result { return &Result{Winner: c, Reason: reason} }

func DrawBy(reason Reason) *Result { return &Result{Draw: true, Reason: reason} }

// PGN returns the PGN result token.
func (r *Result) PGN() string {
	switch {
	case r == nil:
		return "*"
	case r.Draw:
		return "1/2-1/2"
	case r.Winner == White:
		return "1-0"
	case r.Winner == Black:
		return "0-1"
	default:
		return "*"
	}
}

// Seats maps colors to player ids; empty means unfilled.
type Seats struct {
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`
}

func (s Seats) Of(c Color) string {
	if c == White {
		return s.White
	}
	return s.Black
}

func (s *Seats) Set(c Color, playerID string) {
	if c == White {
		s.White = playerID
	} else {
		s.Black = playerID
	}
}

// ColorOf returns the seat held by playerID.
func (s Seats) ColorOf(playerID string) (Color, bool) {
	switch {
	case playerID == "":
		return "", false
	case s.White == playerID:
		return White, true
	case s.Black == playerID:
		return Black, true
	default:
		return "", false
	}
}

func (s Seats) Full() bool { return s.White != "" && s.Black != "" }

// DrawOffer is the pending draw offer of a game, if any.
type DrawOffer struct {
	Pending   bool      `json:"pending"`
	OfferedBy string    `json:"offered_by,omitempty"`
	OfferedAt time.Time `json:"offered_at,omitempty"`
}

// Pairing is the seed a roster hands to the coordinator for a new game.
type Pairing struct {
	GameID      string
	WhiteID     string
	BlackID     string
	TimeControl TimeControl
}
