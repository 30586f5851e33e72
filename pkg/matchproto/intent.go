// Package matchproto is the wire contract between match participants and the coordinator.
// Frames are JSON text messages; every frame carries a type discriminator.
package matchproto

// IntentType names a client → server request.
type IntentType string

const (
	IntentAuthenticate IntentType = "authenticate"
	IntentJoinGame     IntentType = "join-game"
	IntentMakeMove     IntentType = "make-move"
	IntentResign       IntentType = "resign"
	IntentOfferDraw    IntentType = "offer-draw"
	IntentAcceptDraw   IntentType = "accept-draw"
	IntentRejectDraw   IntentType = "reject-draw"
)

// Intent is a client request. Player identity is never part of an intent; the server uses
// the connection's authenticated identity.
type Intent struct {
	Type      IntentType `json:"type"`
	RequestID string     `json:"request_id,omitempty"`
	Token     string     `json:"token,omitempty"`
	GameID    string     `json:"game_id,omitempty"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	Promotion string     `json:"promotion,omitempty"`
	// Move is an alternative to From/To: UCI ("e2e4") or SAN ("Nf3").
	Move string `json:"move,omitempty"`
}

// GameScoped reports whether the intent targets a game.
func (t IntentType) GameScoped() bool {
	switch t {
	case IntentJoinGame, IntentMakeMove, IntentResign, IntentOfferDraw, IntentAcceptDraw, IntentRejectDraw:
		return true
	default:
		return false
	}
}
