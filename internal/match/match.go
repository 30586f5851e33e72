// Package match holds the authoritative state of one game and the rules for changing it.
// A Match is not safe for concurrent use; the coordinator serializes access per game.
package match

import (
	"fmt"
	"sort"
	"time"

	"github.com/park285/cheese-match/internal/clock"
	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/rules"
	"github.com/park285/cheese-match/pkg/matchproto"
)

type Match struct {
	id        string
	engine    rules.Engine
	clock     *clock.Clock
	status    Status
	fen       string
	turn      domain.Color
	seats     domain.Seats
	reserved  domain.Seats
	observers map[string]struct{}
	history   []matchproto.MoveRecord
	draw      domain.DrawOffer
	result    *domain.Result
	version   uint64
	createdAt time.Time
	updatedAt time.Time
	pending   []Event
	now       func() time.Time
}

// New creates a game waiting for both seats.
func New(id string, tc domain.TimeControl, engine rules.Engine, opts ...Option) *Match {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	now := o.now()
	return &Match{
		id:        id,
		engine:    engine,
		clock:     clock.New(tc, o.now),
		status:    StatusWaitingForSeats,
		fen:       engine.StartFEN(),
		turn:      domain.White,
		reserved:  o.reserved,
		observers: make(map[string]struct{}),
		createdAt: now,
		updatedAt: now,
		now:       o.now,
	}
}

func (m *Match) ID() string                      { return m.id }
func (m *Match) Status() Status                  { return m.status }
func (m *Match) Version() uint64                 { return m.version }
func (m *Match) Turn() domain.Color              { return m.turn }
func (m *Match) FEN() string                     { return m.fen }
func (m *Match) Seats() domain.Seats             { return m.seats }
func (m *Match) TimeControl() domain.TimeControl { return m.clock.TimeControl() }
func (m *Match) UpdatedAt() time.Time            { return m.updatedAt }
func (m *Match) Terminated() bool                { return m.status == StatusTerminated }

// Result returns the terminal result, or nil while the game is live.
func (m *Match) Result() *domain.Result {
	if m.result == nil {
		return nil
	}
	r := *m.result
	return &r
}

// Role reports playerID's current role without changing anything.
func (m *Match) Role(playerID string) domain.Role {
	if c, ok := m.seats.ColorOf(playerID); ok {
		return domain.RoleOf(c)
	}
	return domain.RoleObserver
}

// Line returns the UCI move list played so far.
func (m *Match) Line() rules.Line {
	moves := make([]string, 0, len(m.history))
	for _, mv := range m.history {
		moves = append(moves, mv.UCI)
	}
	return rules.Line{Moves: moves}
}

// Deadline is the instant the side to move flags, if a clock is running.
func (m *Match) Deadline() (time.Time, bool) {
	if m.status != StatusActive {
		return time.Time{}, false
	}
	return m.clock.Deadline()
}

// Drain hands over the events produced since the last call.
func (m *Match) Drain() []Event {
	out := m.pending
	m.pending = nil
	return out
}

// Join seats playerID in the first open seat it may take, or records it as an observer.
// A player already seated gets its seat back.
func (m *Match) Join(playerID string) (domain.Role, error) {
	if playerID == "" {
		return "", domain.Errf(domain.KindBadRequest, "player id required")
	}
	m.checkFlag()
	if c, ok := m.seats.ColorOf(playerID); ok {
		return domain.RoleOf(c), nil
	}
	if m.status == StatusTerminated {
		return domain.RoleObserver, nil
	}

	if c, ok := m.openSeatFor(playerID); ok {
		m.advance()
		m.seats.Set(c, playerID)
		delete(m.observers, playerID)
		m.emit(Event{Kind: EventPlayerJoined, PlayerID: playerID, Role: domain.RoleOf(c)})
		if m.seats.Full() {
			m.status = StatusActive
			m.clock.Start(m.turn)
		}
		return domain.RoleOf(c), nil
	}

	if _, ok := m.observers[playerID]; !ok {
		m.advance()
		m.observers[playerID] = struct{}{}
		m.emit(Event{Kind: EventPlayerJoined, PlayerID: playerID, Role: domain.RoleObserver})
	}
	return domain.RoleObserver, nil
}

// Leave drops an observer. Seats are never released.
func (m *Match) Leave(playerID string) {
	delete(m.observers, playerID)
}

func (m *Match) openSeatFor(playerID string) (domain.Color, bool) {
	if c, ok := m.reserved.ColorOf(playerID); ok && m.seats.Of(c) == "" {
		return c, true
	}
	for _, c := range []domain.Color{domain.White, domain.Black} {
		if m.seats.Of(c) == "" && m.reserved.Of(c) == "" {
			return c, true
		}
	}
	return "", false
}

// Move applies a move for the side to move.
func (m *Match) Move(playerID string, req rules.MoveRequest) (matchproto.MoveRecord, error) {
	if err := m.precheck(playerID, true); err != nil {
		return matchproto.MoveRecord{}, err
	}
	color, _ := m.seats.ColorOf(playerID)
	if color != m.turn {
		return matchproto.MoveRecord{}, domain.Errf(domain.KindNotSeated, "not your turn")
	}
	if req.Empty() {
		return matchproto.MoveRecord{}, domain.Errf(domain.KindIllegalMove, "move is required")
	}

	applied, err := m.engine.Apply(m.Line(), req)
	if err != nil {
		return matchproto.MoveRecord{}, err
	}

	m.advance()
	m.clock.SwitchTurn()
	m.fen = applied.FEN
	m.turn = applied.Turn
	rec := matchproto.MoveRecord{
		Ply:     len(m.history) + 1,
		Color:   string(color),
		UCI:     applied.UCI,
		SAN:     applied.SAN,
		FEN:     applied.FEN,
		WhiteMs: m.clock.Remaining(domain.White),
		BlackMs: m.clock.Remaining(domain.Black),
		AtMs:    m.updatedAt.UnixMilli(),
	}
	m.history = append(m.history, rec)
	m.emit(Event{Kind: EventMoveMade, PlayerID: playerID, Role: domain.RoleOf(color), Move: &rec})

	if applied.Outcome != nil {
		m.finish(applied.Outcome)
	}
	return rec, nil
}

// OfferDraw records a pending offer from a seated player.
func (m *Match) OfferDraw(playerID string) error {
	if err := m.precheck(playerID, true); err != nil {
		return err
	}
	if m.draw.Pending {
		return domain.Errf(domain.KindInvalidOfferState, "a draw offer is already pending")
	}
	m.advance()
	m.draw = domain.DrawOffer{Pending: true, OfferedBy: playerID, OfferedAt: m.updatedAt}
	m.emit(Event{Kind: EventDrawOffered, PlayerID: playerID, Role: m.Role(playerID)})
	return nil
}

// AcceptDraw ends the game by agreement. Only the non-offering seat may accept.
func (m *Match) AcceptDraw(playerID string) error {
	if err := m.answerable(playerID); err != nil {
		return err
	}
	m.advance()
	m.finish(domain.DrawBy(domain.ReasonAgreement))
	return nil
}

// RejectDraw clears the pending offer.
func (m *Match) RejectDraw(playerID string) error {
	if err := m.answerable(playerID); err != nil {
		return err
	}
	m.advance()
	m.draw = domain.DrawOffer{}
	m.emit(Event{Kind: EventDrawDeclined, PlayerID: playerID, Role: m.Role(playerID)})
	return nil
}

func (m *Match) answerable(playerID string) error {
	if err := m.precheck(playerID, false); err != nil {
		return err
	}
	if !m.draw.Pending {
		return domain.Errf(domain.KindInvalidOfferState, "no draw offer is pending")
	}
	if m.draw.OfferedBy == playerID {
		return domain.Errf(domain.KindInvalidOfferState, "cannot answer your own draw offer")
	}
	return nil
}

// Resign hands the win to the opponent.
func (m *Match) Resign(playerID string) error {
	if err := m.precheck(playerID, true); err != nil {
		return err
	}
	color, _ := m.seats.ColorOf(playerID)
	m.advance()
	m.finish(domain.WinFor(color.Other(), domain.ReasonResignation))
	return nil
}

// Tick runs the flag check. It reports whether the game ended on time.
func (m *Match) Tick() bool {
	return m.checkFlag()
}

// precheck runs the flag check, then: game not over, caller seated, game started.
func (m *Match) precheck(playerID string, needStarted bool) error {
	m.checkFlag()
	if m.status == StatusTerminated {
		return domain.Errf(domain.KindGameOver, "game is over")
	}
	if _, ok := m.seats.ColorOf(playerID); !ok {
		return domain.Errf(domain.KindNotSeated, "you are not seated in this game")
	}
	if needStarted && m.status != StatusActive {
		return domain.Errf(domain.KindNotStarted, "waiting for an opponent")
	}
	return nil
}

func (m *Match) checkFlag() bool {
	if m.status != StatusActive || !m.clock.Expired(m.turn) {
		return false
	}
	m.advance()
	m.finish(domain.WinFor(m.turn.Other(), domain.ReasonTimeout))
	return true
}

func (m *Match) finish(r *domain.Result) {
	m.clock.Freeze()
	m.status = StatusTerminated
	m.result = r
	m.draw = domain.DrawOffer{}
	m.emit(Event{Kind: EventGameOver, Result: m.Result()})
}

func (m *Match) advance() {
	m.version++
	m.updatedAt = m.now()
}

func (m *Match) emit(ev Event) {
	ev.Seq = m.version
	m.pending = append(m.pending, ev)
}

// Clocks samples both clocks now.
func (m *Match) Clocks() matchproto.Clocks {
	return matchproto.Clocks{
		WhiteMs: m.clock.Remaining(domain.White),
		BlackMs: m.clock.Remaining(domain.Black),
		Running: string(m.clock.Running()),
	}
}

// Snapshot returns the full public state. The flag check runs first, so a
// snapshot never shows a running clock at zero.
func (m *Match) Snapshot() matchproto.GameState {
	m.checkFlag()
	tc := m.clock.TimeControl()
	st := matchproto.GameState{
		GameID:      m.id,
		Status:      string(m.status),
		FEN:         m.fen,
		Turn:        string(m.turn),
		Seats:       matchproto.Seats{White: m.seats.White, Black: m.seats.Black},
		Clocks:      m.Clocks(),
		TimeControl: matchproto.TimeControl{InitialMs: tc.InitialMs, IncrementMs: tc.IncrementMs},
		History:     append([]matchproto.MoveRecord(nil), m.history...),
		DrawOffer:   matchproto.DrawOffer{Pending: m.draw.Pending, OfferedBy: m.draw.OfferedBy},
		Observers:   len(m.observers),
		Seq:         m.version,
	}
	if m.result != nil {
		st.Result = ProtoResult(m.result)
	}
	return st
}

// ProtoResult converts a domain result to its wire form.
func ProtoResult(r *domain.Result) *matchproto.Result {
	if r == nil {
		return nil
	}
	return &matchproto.Result{Winner: string(r.Winner), Draw: r.Draw, Reason: string(r.Reason)}
}

// Record captures the match for persistence.
func (m *Match) Record() Record {
	obs := make([]string, 0, len(m.observers))
	for id := range m.observers {
		obs = append(obs, id)
	}
	sort.Strings(obs)
	return Record{
		ID:          m.id,
		Status:      m.status,
		TimeControl: m.clock.TimeControl(),
		Seats:       m.seats,
		Reserved:    m.reserved,
		Observers:   obs,
		Moves:       append([]matchproto.MoveRecord(nil), m.history...),
		DrawOffer:   m.draw,
		Result:      m.Result(),
		Clock:       m.clock.State(),
		Version:     m.version,
		CreatedAt:   m.createdAt,
		UpdatedAt:   m.updatedAt,
	}
}

// Restore rebuilds a match from a record, replaying its moves to recover the position.
func Restore(rec Record, engine rules.Engine, opts ...Option) (*Match, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("restore match: empty id")
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	fen, err := engine.Replay(rules.Line{Moves: rec.UCIs()})
	if err != nil {
		return nil, fmt.Errorf("restore match %s: %w", rec.ID, err)
	}
	m := &Match{
		id:        rec.ID,
		engine:    engine,
		clock:     clock.New(rec.TimeControl, o.now),
		status:    rec.Status,
		fen:       fen,
		turn:      domain.White,
		seats:     rec.Seats,
		reserved:  rec.Reserved,
		observers: make(map[string]struct{}, len(rec.Observers)),
		history:   append([]matchproto.MoveRecord(nil), rec.Moves...),
		draw:      rec.DrawOffer,
		result:    rec.Result,
		version:   rec.Version,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
		now:       o.now,
	}
	if len(rec.Moves)%2 == 1 {
		m.turn = domain.Black
	}
	for _, id := range rec.Observers {
		m.observers[id] = struct{}{}
	}
	m.clock.Restore(rec.Clock)
	if m.status == StatusTerminated {
		m.clock.Freeze()
	}
	return m, nil
}
