// Package participant is the client side of a match: it owns one connection, keeps the
// authoritative game state the server sends, and layers an unconfirmed local move on top.
package participant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/rules"
	"github.com/park285/cheese-match/internal/transport/wsclient"
	"github.com/park285/cheese-match/pkg/matchproto"
)

const defaultConfirmTimeout = 3 * time.Second

// Link is the connection a session drives. wsclient.WebSocket implements it.
type Link interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, in matchproto.Intent) error
	OnEvent(cb wsclient.EventCallback) int
	OnStateChange(cb wsclient.StateCallback) int
	Close(ctx context.Context) error
}

type options struct {
	confirmTimeout time.Duration
	now            func() time.Time
	log            *zap.Logger
	onChange       func(View)
}

type Option func(*options)

func WithConfirmTimeout(d time.Duration) Option {
	return func(o *options) { o.confirmTimeout = d }
}

func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithOnChange registers a callback that receives the view after every change.
func WithOnChange(fn func(View)) Option {
	return func(o *options) { o.onChange = fn }
}

type Session struct {
	link   Link
	engine rules.Engine
	opts   options
	log    *zap.Logger

	mu         sync.Mutex
	token      string
	gameID     string
	status     Status
	closed     bool
	playerID   string
	role       domain.Role
	state      *matchproto.GameState
	receivedAt time.Time
	lastSeq    uint64
	overlay    *Overlay
	lastErr    *matchproto.ErrorBody
}

func New(link Link, engine rules.Engine, opts ...Option) *Session {
	o := options{confirmTimeout: defaultConfirmTimeout, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if engine == nil {
		engine = rules.NewStandard()
	}
	s := &Session{link: link, engine: engine, opts: o, log: o.log, status: StatusDisconnected}
	link.OnEvent(s.onEvent)
	link.OnStateChange(s.onLinkState)
	return s
}

// Start connects, then authenticates with token and joins gameID. Progress is
// reported through the view; Start only fails if the first dial fails.
func (s *Session) Start(ctx context.Context, token, gameID string) error {
	s.mu.Lock()
	s.token, s.gameID = token, gameID
	s.closed = false
	s.status = StatusConnecting
	s.mu.Unlock()
	s.notify()
	return s.link.Connect(ctx)
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.status = StatusDisconnected
	s.mu.Unlock()
	err := s.link.Close(ctx)
	s.notify()
	return err
}

// View returns the current participant view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	s.expireOverlayLocked()
	v := View{
		Status:    s.status,
		GameID:    s.gameID,
		PlayerID:  s.playerID,
		Role:      s.role,
		LastError: s.lastErr,
		Seq:       s.lastSeq,
	}
	if s.state == nil {
		return v
	}
	st := s.state
	v.Seats = st.Seats
	v.FEN = st.FEN
	v.Turn = domain.Color(st.Turn)
	v.History = append([]matchproto.MoveRecord(nil), st.History...)
	v.Result = st.Result
	v.DrawPending = st.DrawOffer.Pending
	v.OfferedBy = st.DrawOffer.OfferedBy
	v.Running = domain.Color(st.Clocks.Running)
	v.Unlimited = st.TimeControl.InitialMs <= 0
	v.WhiteMs, v.BlackMs = extrapolate(st.Clocks, s.receivedAt, s.opts.now())
	if s.overlay != nil {
		v.FEN = s.overlay.FEN
		v.Unconfirmed = true
		v.PendingMove = s.overlay.UCI
	}
	color, seated := s.role.Color()
	v.MyTurn = seated && st.Result == nil && color == v.Turn && s.overlay == nil
	v.DrawPrompt = seated && st.Result == nil && st.DrawOffer.Pending && st.DrawOffer.OfferedBy != s.playerID
	return v
}

func (s *Session) expireOverlayLocked() {
	if s.overlay != nil && s.opts.now().Sub(s.overlay.SubmittedAt) >= s.opts.confirmTimeout {
		s.log.Debug("overlay_expired", zap.String("request_id", s.overlay.RequestID))
		s.overlay = nil
	}
}

// SubmitMove applies the move locally as an unconfirmed overlay and sends it.
func (s *Session) SubmitMove(ctx context.Context, req rules.MoveRequest) error {
	s.mu.Lock()
	s.expireOverlayLocked()
	if err := s.preflightLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	color, _ := s.role.Color()
	if color != domain.Color(s.state.Turn) {
		s.mu.Unlock()
		return domain.Errf(domain.KindNotSeated, "not your turn")
	}
	if s.overlay != nil {
		s.mu.Unlock()
		return domain.Errf(domain.KindBadRequest, "previous move not confirmed yet")
	}
	applied, err := s.engine.Apply(lineOf(s.state.History), req)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	in := matchproto.Intent{Type: matchproto.IntentMakeMove, RequestID: uuid.NewString(), GameID: s.gameID, Move: applied.UCI}
	s.overlay = &Overlay{FEN: applied.FEN, UCI: applied.UCI, RequestID: in.RequestID, SubmittedAt: s.opts.now()}
	s.mu.Unlock()

	if err := s.link.Send(ctx, in); err != nil {
		s.mu.Lock()
		if s.overlay != nil && s.overlay.RequestID == in.RequestID {
			s.overlay = nil
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	time.AfterFunc(s.opts.confirmTimeout, s.notify)
	s.notify()
	return nil
}

func (s *Session) Resign(ctx context.Context) error {
	return s.sendSeated(ctx, matchproto.IntentResign, nil)
}

func (s *Session) OfferDraw(ctx context.Context) error {
	return s.sendSeated(ctx, matchproto.IntentOfferDraw, func() error {
		if s.state.DrawOffer.Pending {
			return domain.Errf(domain.KindInvalidOfferState, "a draw offer is already pending")
		}
		return nil
	})
}

func (s *Session) AcceptDraw(ctx context.Context) error {
	return s.sendSeated(ctx, matchproto.IntentAcceptDraw, s.answerableLocked)
}

func (s *Session) RejectDraw(ctx context.Context) error {
	return s.sendSeated(ctx, matchproto.IntentRejectDraw, s.answerableLocked)
}

func (s *Session) answerableLocked() error {
	if !s.state.DrawOffer.Pending || s.state.DrawOffer.OfferedBy == s.playerID {
		return domain.Errf(domain.KindInvalidOfferState, "no draw offer to answer")
	}
	return nil
}

func (s *Session) sendSeated(ctx context.Context, typ matchproto.IntentType, check func() error) error {
	s.mu.Lock()
	err := s.preflightLocked()
	if err == nil && check != nil {
		err = check()
	}
	in := matchproto.Intent{Type: typ, RequestID: uuid.NewString(), GameID: s.gameID}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.link.Send(ctx, in)
}

// preflightLocked mirrors the server's checks so obviously doomed intents are not sent.
func (s *Session) preflightLocked() error {
	if s.status != StatusJoined || s.state == nil {
		return domain.Errf(domain.KindNotStarted, "not joined")
	}
	if s.state.Result != nil {
		return domain.Errf(domain.KindGameOver, "game is over")
	}
	if _, ok := s.role.Color(); !ok {
		return domain.Errf(domain.KindNotSeated, "observers cannot act")
	}
	if s.state.Status != matchproto.StatusActive {
		return domain.Errf(domain.KindNotStarted, "waiting for an opponent")
	}
	return nil
}

func (s *Session) onLinkState(st wsclient.State) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var auth *matchproto.Intent
	switch st {
	case wsclient.StateConnecting:
		if s.status != StatusReconnecting {
			s.status = StatusConnecting
		}
	case wsclient.StateConnected:
		s.status = StatusAuthenticating
		s.playerID = ""
		auth = &matchproto.Intent{Type: matchproto.IntentAuthenticate, RequestID: uuid.NewString(), Token: s.token}
	case wsclient.StateDisconnected, wsclient.StateReconnecting:
		s.status = StatusReconnecting
	case wsclient.StateFailed:
		s.status = StatusFailed
	}
	s.log.Debug("link_state", zap.String("link", st.String()), zap.String("status", string(s.status)))
	s.mu.Unlock()

	if auth != nil {
		if err := s.link.Send(context.Background(), *auth); err != nil {
			s.log.Warn("authenticate_send_failed", zap.Error(err))
		}
	}
	s.notify()
}

func (s *Session) onEvent(ev *matchproto.Event) {
	s.mu.Lock()
	follow := s.applyLocked(ev)
	s.mu.Unlock()
	if follow != nil {
		if err := s.link.Send(context.Background(), *follow); err != nil {
			s.log.Warn("intent_send_failed", zap.String("intent", string(follow.Type)), zap.Error(err))
		}
	}
	s.notify()
}

// applyLocked folds one server event into the session and returns an intent to send
// in response, if any.
func (s *Session) applyLocked(ev *matchproto.Event) *matchproto.Intent {
	switch ev.Type {
	case matchproto.EventAuthSuccess:
		s.playerID = ev.PlayerID
		s.status = StatusJoining
		return s.joinIntentLocked()
	case matchproto.EventAuthError:
		s.status = StatusFailed
		s.lastErr = ev.Error
		return nil
	case matchproto.EventError:
		s.lastErr = ev.Error
		if s.overlay != nil && ev.RequestID == s.overlay.RequestID {
			s.overlay = nil
		}
		return nil
	}

	if ev.GameID != "" && ev.GameID != s.gameID {
		return nil
	}

	// A full state replaces everything, even at a lower seq: the server may have
	// restarted without a snapshot.
	if ev.Type == matchproto.EventGameState {
		if ev.State == nil {
			return nil
		}
		st := *ev.State
		s.state = &st
		s.role = domain.Role(ev.Role)
		s.receivedAt = s.opts.now()
		s.overlay = nil
		s.status = StatusJoined
		s.lastSeq = ev.Seq
		return nil
	}
	if ev.Seq < s.lastSeq {
		s.log.Debug("stale_event", zap.String("event", string(ev.Type)), zap.Uint64("seq", ev.Seq), zap.Uint64("last_seq", s.lastSeq))
		return nil
	}
	if s.state == nil {
		return nil
	}

	switch ev.Type {
	case matchproto.EventPlayerJoined:
		if ev.Seats != nil {
			s.state.Seats = *ev.Seats
			if s.state.Seats.White != "" && s.state.Seats.Black != "" && s.state.Result == nil {
				s.state.Status = matchproto.StatusActive
				s.startClocksLocked(ev.Clocks)
			}
		}
		if ev.Role == string(domain.RoleObserver) {
			s.state.Observers++
		}
	case matchproto.EventMoveMade:
		if ev.Move == nil || ev.Move.Ply <= len(s.state.History) {
			return nil
		}
		if ev.Move.Ply != len(s.state.History)+1 {
			s.log.Info("history_gap", zap.Int("have", len(s.state.History)), zap.Int("got", ev.Move.Ply))
			return s.joinIntentLocked()
		}
		s.state.History = append(s.state.History, *ev.Move)
		s.state.FEN = ev.Move.FEN
		s.state.Turn = string(turnFromFEN(ev.Move.FEN))
		s.setClocksLocked(ev.Clocks)
		s.overlay = nil
	case matchproto.EventDrawOffered:
		s.state.DrawOffer = matchproto.DrawOffer{Pending: true, OfferedBy: ev.OfferedBy}
	case matchproto.EventDrawDeclined:
		s.state.DrawOffer = matchproto.DrawOffer{}
	case matchproto.EventGameOver:
		s.state.Result = ev.Result
		s.state.Status = matchproto.StatusTerminated
		s.state.DrawOffer = matchproto.DrawOffer{}
		s.setClocksLocked(ev.Clocks)
		s.overlay = nil
	default:
		return nil
	}
	s.lastSeq = ev.Seq
	s.state.Seq = ev.Seq
	return nil
}

func (s *Session) setClocksLocked(c *matchproto.Clocks) {
	if c == nil {
		return
	}
	s.state.Clocks = *c
	s.receivedAt = s.opts.now()
}

// startClocksLocked runs the side to move once both seats fill.
func (s *Session) startClocksLocked(c *matchproto.Clocks) {
	if c != nil {
		s.setClocksLocked(c)
		return
	}
	if s.state.Clocks.Running != "" {
		return
	}
	turn := s.state.Turn
	if turn == "" {
		turn = string(domain.White)
	}
	s.state.Clocks.Running = turn
	s.receivedAt = s.opts.now()
}

func (s *Session) joinIntentLocked() *matchproto.Intent {
	s.status = StatusJoining
	return &matchproto.Intent{Type: matchproto.IntentJoinGame, RequestID: uuid.NewString(), GameID: s.gameID}
}

func (s *Session) notify() {
	if s.opts.onChange == nil {
		return
	}
	s.opts.onChange(s.View())
}

func lineOf(history []matchproto.MoveRecord) rules.Line {
	moves := make([]string, 0, len(history))
	for _, mv := range history {
		moves = append(moves, mv.UCI)
	}
	return rules.Line{Moves: moves}
}
