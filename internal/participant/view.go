package participant

import (
	"strings"
	"time"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/pkg/matchproto"
)

type Status string

const (
	StatusDisconnected   Status = "disconnected"
	StatusConnecting     Status = "connecting"
	StatusAuthenticating Status = "authenticating"
	StatusJoining        Status = "joining"
	StatusJoined         Status = "joined"
	StatusReconnecting   Status = "reconnecting"
	StatusFailed         Status = "failed"
)

// Overlay is a locally applied move the server has not confirmed yet.
type Overlay struct {
	FEN         string
	UCI         string
	RequestID   string
	SubmittedAt time.Time
}

// View is what a participant renders. FEN shows the overlay while one is pending.
type View struct {
	Status      Status
	GameID      string
	PlayerID    string
	Role        domain.Role
	Seats       matchproto.Seats
	FEN         string
	Unconfirmed bool
	PendingMove string
	Turn        domain.Color
	MyTurn      bool
	WhiteMs     int64
	BlackMs     int64
	Running     domain.Color
	Unlimited   bool
	History     []matchproto.MoveRecord
	DrawPending bool
	OfferedBy   string
	DrawPrompt  bool
	Result      *matchproto.Result
	LastError   *matchproto.ErrorBody
	Seq         uint64
}

// Over reports whether the game has a result.
func (v View) Over() bool { return v.Result != nil }

// turnFromFEN reads the side-to-move field.
func turnFromFEN(fen string) domain.Color {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return domain.Black
	}
	return domain.White
}

// extrapolate runs the sampled clock forward by the local time since it was received.
func extrapolate(c matchproto.Clocks, receivedAt, now time.Time) (white, black int64) {
	white, black = c.WhiteMs, c.BlackMs
	if receivedAt.IsZero() {
		return white, black
	}
	elapsed := now.Sub(receivedAt).Milliseconds()
	switch domain.Color(c.Running) {
	case domain.White:
		white = max(white-elapsed, 0)
	case domain.Black:
		black = max(black-elapsed, 0)
	}
	return white, black
}
