package matchproto

const (
	StatusWaitingForSeats = "waiting_for_seats"
	StatusActive          = "active"
	StatusTerminated      = "terminated"
)

type Seats struct {
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`
}

// Clocks is a clock sample taken at the enclosing event's ServerTimeMs.
type Clocks struct {
	WhiteMs int64  `json:"white_ms"`
	BlackMs int64  `json:"black_ms"`
	Running string `json:"running,omitempty"`
}

type MoveRecord struct {
	Ply     int    `json:"ply"`
	Color   string `json:"color"`
	UCI     string `json:"uci"`
	SAN     string `json:"san"`
	FEN     string `json:"fen"`
	WhiteMs int64  `json:"white_ms"`
	BlackMs int64  `json:"black_ms"`
	AtMs    int64  `json:"at_ms"`
}

type DrawOffer struct {
	Pending   bool   `json:"pending"`
	OfferedBy string `json:"offered_by,omitempty"`
}

type Result struct {
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
	Reason string `json:"reason"`
}

type TimeControl struct {
	InitialMs   int64 `json:"initial_ms"`
	IncrementMs int64 `json:"increment_ms"`
}

// GameState is the full public state of one game.
type GameState struct {
	GameID      string       `json:"game_id"`
	Status      string       `json:"status"`
	FEN         string       `json:"fen"`
	Turn        string       `json:"turn"`
	Seats       Seats        `json:"seats"`
	Clocks      Clocks       `json:"clocks"`
	TimeControl TimeControl  `json:"time_control"`
	History     []MoveRecord `json:"history"`
	DrawOffer   DrawOffer    `json:"draw_offer"`
	Result      *Result      `json:"result,omitempty"`
	Observers   int          `json:"observers"`
	Seq         uint64       `json:"seq"`
}

// SeatOf returns "white", "black" or "" for playerID.
func (s *GameState) SeatOf(playerID string) string {
	switch {
	case s == nil || playerID == "":
		return ""
	case s.Seats.White == playerID:
		return "white"
	case s.Seats.Black == playerID:
		return "black"
	default:
		return ""
	}
}
