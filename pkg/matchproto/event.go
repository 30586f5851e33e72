package matchproto

// EventType names a server → client message.
type EventType string

const (
	EventAuthSuccess  EventType = "auth-success"
	EventAuthError    EventType = "auth-error"
	EventGameState    EventType = "game-state"
	EventPlayerJoined EventType = "player-joined"
	EventMoveMade     EventType = "move-made"
	EventDrawOffered  EventType = "draw-offered"
	EventDrawDeclined EventType = "draw-declined"
	EventGameOver     EventType = "game-over"
	EventError        EventType = "error"
)

// Event is a server message. Seq is the game's transition counter: all events caused by one
// transition share it, and it never decreases for a game.
type Event struct {
	Type         EventType   `json:"type"`
	GameID       string      `json:"game_id,omitempty"`
	Seq          uint64      `json:"seq,omitempty"`
	RequestID    string      `json:"request_id,omitempty"`
	PlayerID     string      `json:"player_id,omitempty"`
	Role         string      `json:"role,omitempty"`
	State        *GameState  `json:"state,omitempty"`
	Seats        *Seats      `json:"seats,omitempty"`
	Move         *MoveRecord `json:"move,omitempty"`
	FEN          string      `json:"fen,omitempty"`
	Clocks       *Clocks     `json:"clocks,omitempty"`
	Result       *Result     `json:"result,omitempty"`
	OfferedBy    string      `json:"offered_by,omitempty"`
	Error        *ErrorBody  `json:"error,omitempty"`
	ServerTimeMs int64       `json:"server_time_ms"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}
