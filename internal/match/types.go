package match

import (
	"time"

	"github.com/park285/cheese-match/internal/clock"
	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/pkg/matchproto"
)

// Status is the lifecycle state of a match.
type Status string

const (
	StatusWaitingForSeats Status = matchproto.StatusWaitingForSeats
	StatusActive          Status = matchproto.StatusActive
	StatusTerminated      Status = matchproto.StatusTerminated
)

// EventKind names a domain event produced by an accepted transition.
type EventKind string

const (
	EventPlayerJoined EventKind = "player-joined"
	EventMoveMade     EventKind = "move-made"
	EventDrawOffered  EventKind = "draw-offered"
	EventDrawDeclined EventKind = "draw-declined"
	EventGameOver     EventKind = "game-over"
)

// Event is emitted by the match and drained by its owner for broadcasting.
type Event struct {
	Kind     EventKind
	Seq      uint64
	PlayerID string
	Role     domain.Role
	Move     *matchproto.MoveRecord
	Result   *domain.Result
}

// Record is the persisted form of a match.
type Record struct {
	ID          string                  `json:"id"`
	Status      Status                  `json:"status"`
	TimeControl domain.TimeControl      `json:"time_control"`
	Seats       domain.Seats            `json:"seats"`
	Reserved    domain.Seats            `json:"reserved"`
	Observers   []string                `json:"observers,omitempty"`
	Moves       []matchproto.MoveRecord `json:"moves"`
	DrawOffer   domain.DrawOffer        `json:"draw_offer"`
	Result      *domain.Result          `json:"result,omitempty"`
	Clock       clock.State             `json:"clock"`
	Version     uint64                  `json:"version"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// UCIs returns the move list of the record.
func (r *Record) UCIs() []string {
	out := make([]string, 0, len(r.Moves))
	for _, mv := range r.Moves {
		out = append(out, mv.UCI)
	}
	return out
}

// SANs returns the SAN list of the record.
func (r *Record) SANs() []string {
	out := make([]string, 0, len(r.Moves))
	for _, mv := range r.Moves {
		out = append(out, mv.SAN)
	}
	return out
}

type options struct {
	reserved domain.Seats
	now      func() time.Time
}

type Option func(*options)

// WithReservedSeats restricts each non-empty color to the named player.
func WithReservedSeats(s domain.Seats) Option {
	return func(o *options) { o.reserved = s }
}

// WithNow injects the wall clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
