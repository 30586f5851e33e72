package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/match"
	"github.com/park285/cheese-match/internal/rules"
	"github.com/park285/cheese-match/pkg/matchproto"
)

type cmdKind int

const (
	cmdIntent cmdKind = iota
	cmdTick
	cmdLeave
	cmdSnapshot
)

type command struct {
	kind     cmdKind
	peer     Peer
	playerID string
	intent   matchproto.Intent
	reply    chan snapshotReply
}

type snapshotReply struct {
	state matchproto.GameState
	err   error
}

type subscriber struct {
	peer     Peer
	playerID string
}

// gameActor owns one match. Only run's goroutine touches m and subs; the sweep
// reads the published atomics.
type gameActor struct {
	c     *Coordinator
	id    string
	inbox chan command
	log   *zap.Logger

	deadline  atomic.Int64
	dormant   atomic.Bool
	idleSince atomic.Int64

	m       *match.Match
	loadErr error
	subs    map[string]subscriber
}

func newGameActor(c *Coordinator, id string) *gameActor {
	a := &gameActor{
		c:     c,
		id:    id,
		inbox: make(chan command, c.cfg.MailboxSize),
		log:   c.log.With(zap.String("game_id", id)),
		subs:  make(map[string]subscriber),
	}
	a.idleSince.Store(c.deps.Now().UnixMilli())
	return a
}

// enqueue must be called with c.mu held.
func (a *gameActor) enqueue(cmd command) bool {
	select {
	case a.inbox <- cmd:
		return true
	default:
		return false
	}
}

func (a *gameActor) due(now time.Time) bool {
	d := a.deadline.Load()
	return d > 0 && now.UnixMilli() >= d
}

func (a *gameActor) evictable(now time.Time, retention time.Duration) bool {
	return a.dormant.Load() && now.UnixMilli()-a.idleSince.Load() >= retention.Milliseconds()
}

func (a *gameActor) run(ctx context.Context) {
	a.load(ctx)
	a.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.inbox:
			a.safeHandle(ctx, cmd)
			if a.done() && a.c.release(a) {
				a.log.Info("match_evicted")
				return
			}
		}
	}
}

func (a *gameActor) load(ctx context.Context) {
	deps, cfg := a.c.deps, a.c.cfg
	opts := []match.Option{match.WithNow(deps.Now)}

	if rec, ok := a.c.tombstone(a.id); ok {
		if m, err := match.Restore(rec, deps.Engine, opts...); err == nil {
			a.m = m
			a.log.Info("match_revived", zap.Uint64("seq", m.Version()))
			return
		}
	}

	if deps.Store != nil {
		lctx, cancel := context.WithTimeout(ctx, cfg.IOTimeout)
		rec, found, err := deps.Store.Load(lctx, a.id)
		cancel()
		switch {
		case err != nil:
			a.log.Warn("snapshot_load_failed", zap.Error(err))
		case found:
			m, err := match.Restore(rec, deps.Engine, opts...)
			if err == nil {
				a.m = m
				a.log.Info("match_restored", zap.Uint64("seq", m.Version()), zap.String("status", string(m.Status())))
				return
			}
			a.log.Warn("snapshot_restore_failed", zap.Error(err))
		}
	}

	tc := cfg.DefaultTimeControl
	if deps.Seeder != nil {
		sctx, cancel := context.WithTimeout(ctx, cfg.IOTimeout)
		p, found, err := deps.Seeder.Pairing(sctx, a.id)
		cancel()
		if err != nil {
			a.log.Warn("roster_lookup_failed", zap.Error(err))
			a.loadErr = domain.Errf(domain.KindInternal, "roster unavailable")
			return
		}
		if !found {
			a.loadErr = domain.Errf(domain.KindNotFound, "unknown game")
			return
		}
		tc = p.TimeControl
		opts = append(opts, match.WithReservedSeats(domain.Seats{White: p.WhiteID, Black: p.BlackID}))
	}
	a.m = match.New(a.id, tc, deps.Engine, opts...)
	a.log.Info("match_created", zap.String("time_control", tc.String()))
}

func (a *gameActor) safeHandle(ctx context.Context, cmd command) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("match_panic", zap.Any("panic", r), zap.Stack("stack"))
			if cmd.kind == cmdIntent {
				a.c.reply(cmd.peer, errorEvent(cmd.intent, domain.Errf(domain.KindInternal, fmt.Sprintf("internal error handling %s", cmd.intent.Type))))
			}
			if cmd.reply != nil {
				select {
				case cmd.reply <- snapshotReply{err: fmt.Errorf("snapshot %s: panic", a.id)}:
				default:
				}
			}
		}
	}()
	a.handle(ctx, cmd)
}

func (a *gameActor) handle(ctx context.Context, cmd command) {
	if a.loadErr != nil {
		switch cmd.kind {
		case cmdIntent:
			a.c.reply(cmd.peer, errorEvent(cmd.intent, a.loadErr))
		case cmdSnapshot:
			cmd.reply <- snapshotReply{err: a.loadErr}
		}
		return
	}

	switch cmd.kind {
	case cmdIntent:
		a.intent(ctx, cmd)
	case cmdTick:
		if a.m.Tick() {
			a.log.Info("match_flag_fall", zap.String("winner", string(a.m.Result().Winner)))
		}
	case cmdLeave:
		a.leave(cmd.peer, cmd.playerID)
	case cmdSnapshot:
		st := a.m.Snapshot()
		cmd.reply <- snapshotReply{state: st}
	}
	a.commit(ctx)
}

func (a *gameActor) intent(ctx context.Context, cmd command) {
	in, player := cmd.intent, cmd.playerID
	var err error
	switch in.Type {
	case matchproto.IntentJoinGame:
		a.join(ctx, cmd.peer, player, in)
		return
	case matchproto.IntentMakeMove:
		var rec matchproto.MoveRecord
		rec, err = a.m.Move(player, rules.MoveRequest{From: in.From, To: in.To, Promotion: in.Promotion, Notation: in.Move})
		if err == nil {
			a.log.Info("match_move", zap.String("player_id", player), zap.Int("ply", rec.Ply), zap.String("uci", rec.UCI), zap.String("san", rec.SAN))
		}
	case matchproto.IntentResign:
		err = a.m.Resign(player)
	case matchproto.IntentOfferDraw:
		err = a.m.OfferDraw(player)
	case matchproto.IntentAcceptDraw:
		err = a.m.AcceptDraw(player)
	case matchproto.IntentRejectDraw:
		err = a.m.RejectDraw(player)
	default:
		err = domain.Errf(domain.KindBadRequest, "unknown intent type")
	}
	if err != nil {
		a.log.Debug("intent_rejected", zap.String("player_id", player), zap.String("intent", string(in.Type)), zap.Error(err))
		a.c.reply(cmd.peer, errorEvent(in, err))
	}
}

func (a *gameActor) join(ctx context.Context, p Peer, player string, in matchproto.Intent) {
	role, err := a.m.Join(player)
	if err != nil {
		a.c.reply(p, errorEvent(in, err))
		return
	}
	a.subs[p.ID()] = subscriber{peer: p, playerID: player}
	a.log.Info("match_join", zap.String("player_id", player), zap.String("role", string(role)))

	// Events of the join itself go to everyone else; the joiner gets the full state.
	if events := a.m.Drain(); len(events) > 0 {
		a.broadcast(events, p.ID())
		a.persist(ctx, events)
	}
	st := a.m.Snapshot()
	a.c.reply(p, matchproto.Event{
		Type:      matchproto.EventGameState,
		GameID:    a.id,
		Seq:       st.Seq,
		RequestID: in.RequestID,
		PlayerID:  player,
		Role:      string(role),
		State:     &st,
	})
}

func (a *gameActor) leave(p Peer, player string) {
	delete(a.subs, p.ID())
	for _, s := range a.subs {
		if s.playerID == player {
			return
		}
	}
	a.m.Leave(player)
}

// commit broadcasts pending events, persists the record and republishes the sweep hints.
func (a *gameActor) commit(ctx context.Context) {
	events := a.m.Drain()
	if len(events) > 0 {
		a.broadcast(events, "")
		a.persist(ctx, events)
	}
	a.publish()
}

func (a *gameActor) persist(ctx context.Context, events []match.Event) {
	deps := a.c.deps
	if deps.Store == nil && deps.Archive == nil {
		return
	}
	rec := a.m.Record()
	if deps.Store != nil {
		sctx, cancel := context.WithTimeout(ctx, a.c.cfg.IOTimeout)
		if err := deps.Store.Save(sctx, rec); err != nil {
			a.log.Warn("snapshot_save_failed", zap.Uint64("seq", rec.Version), zap.Error(err))
		}
		cancel()
	}
	if deps.Archive == nil {
		return
	}
	for _, ev := range events {
		if ev.Kind != match.EventGameOver {
			continue
		}
		actx, cancel := context.WithTimeout(ctx, a.c.cfg.IOTimeout)
		if err := deps.Archive.SaveResult(actx, rec); err != nil {
			a.log.Warn("archive_failed", zap.Error(err))
		}
		cancel()
	}
}

func (a *gameActor) publish() {
	if a.m == nil {
		a.deadline.Store(0)
		a.dormant.Store(true)
		return
	}
	if d, ok := a.m.Deadline(); ok {
		a.deadline.Store(d.UnixMilli())
	} else {
		a.deadline.Store(0)
	}
	// A held seat keeps the game loaded so a reconnecting player resumes it.
	seats := a.m.Seats()
	idle := a.m.Terminated() || (seats.White == "" && seats.Black == "")
	a.dormant.Store(len(a.subs) == 0 && idle)
	if len(a.subs) > 0 {
		a.idleSince.Store(a.c.deps.Now().UnixMilli())
	}
}

// done reports whether the actor may leave the registry.
func (a *gameActor) done() bool {
	if a.loadErr != nil {
		return true
	}
	return a.evictable(a.c.deps.Now(), a.c.cfg.Retention)
}

func (a *gameActor) broadcast(events []match.Event, skipPeer string) {
	now := a.c.deps.Now().UnixMilli()
	for _, ev := range events {
		out := a.toProto(ev, now)
		for id, s := range a.subs {
			if id == skipPeer {
				continue
			}
			if ev.Kind == match.EventDrawOffered && !a.offerRecipient(s.playerID, ev.PlayerID) {
				continue
			}
			if !s.peer.Send(out) {
				a.log.Warn("peer_send_failed", zap.String("peer_id", id), zap.String("event", string(out.Type)))
				s.peer.Close("outbound queue full")
				delete(a.subs, id)
			}
		}
	}
}

// offerRecipient reports whether player holds the seat opposite the offerer.
func (a *gameActor) offerRecipient(player, offerer string) bool {
	seats := a.m.Seats()
	c, ok := seats.ColorOf(offerer)
	return ok && player != "" && seats.Of(c.Other()) == player
}

func (a *gameActor) toProto(ev match.Event, now int64) matchproto.Event {
	out := matchproto.Event{GameID: a.id, Seq: ev.Seq, ServerTimeMs: now}
	switch ev.Kind {
	case match.EventPlayerJoined:
		seats := a.m.Seats()
		out.Type = matchproto.EventPlayerJoined
		out.PlayerID = ev.PlayerID
		out.Role = string(ev.Role)
		out.Seats = &matchproto.Seats{White: seats.White, Black: seats.Black}
		if ev.Role != domain.RoleObserver {
			clocks := a.m.Clocks()
			out.Clocks = &clocks
		}
	case match.EventMoveMade:
		clocks := a.m.Clocks()
		out.Type = matchproto.EventMoveMade
		out.PlayerID = ev.PlayerID
		out.Move = ev.Move
		out.FEN = ev.Move.FEN
		out.Clocks = &clocks
	case match.EventDrawOffered:
		out.Type = matchproto.EventDrawOffered
		out.OfferedBy = ev.PlayerID
	case match.EventDrawDeclined:
		out.Type = matchproto.EventDrawDeclined
		out.PlayerID = ev.PlayerID
	case match.EventGameOver:
		clocks := a.m.Clocks()
		out.Type = matchproto.EventGameOver
		out.Result = match.ProtoResult(ev.Result)
		out.Clocks = &clocks
	}
	return out
}
