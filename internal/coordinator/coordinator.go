// Package coordinator is the authoritative server side of the match protocol. It tracks
// connected peers, authenticates them, and routes each game-scoped intent to the single
// goroutine that owns that game.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/match"
	"github.com/park285/cheese-match/internal/rules"
	"github.com/park285/cheese-match/pkg/matchproto"
)

// Peer is one live connection. Send must not block: it returns false when the
// peer's outbound queue is full or the peer is closed, and the coordinator then
// closes the peer and drops its subscriptions.
// Close must not call back into the coordinator.
type Peer interface {
	ID() string
	Send(ev matchproto.Event) bool
	Close(reason string)
}

// Authenticator resolves a credential to a player id.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (string, error)
}

// Seeder supplies the pairing of a game that is not known yet.
type Seeder interface {
	Pairing(ctx context.Context, gameID string) (domain.Pairing, bool, error)
}

// Store persists match records so games survive reconnects and restarts.
type Store interface {
	Save(ctx context.Context, rec match.Record) error
	Load(ctx context.Context, gameID string) (match.Record, bool, error)
	GamesByPlayer(ctx context.Context, playerID string) ([]string, error)
}

// Archiver records finished games.
type Archiver interface {
	SaveResult(ctx context.Context, rec match.Record) error
}

type Config struct {
	DefaultTimeControl domain.TimeControl
	SweepInterval      time.Duration
	Retention          time.Duration
	MailboxSize        int
	IOTimeout          time.Duration
	// TombstoneTTL is how long the final record of an evicted finished game is kept
	// in memory so its id cannot start a new game.
	TombstoneTTL time.Duration
}

type Deps struct {
	Auth    Authenticator
	Engine  rules.Engine
	Seeder  Seeder
	Store   Store
	Archive Archiver
	Logger  *zap.Logger
	Now     func() time.Time
}

type peerState struct {
	peer     Peer
	playerID string
	games    map[string]struct{}
}

type Coordinator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	peers      map[string]*peerState
	games      map[string]*gameActor
	leaves     map[string][]command // leaves that did not fit a full mailbox
	tombstones map[string]tombstone
}

type tombstone struct {
	rec match.Record
	at  time.Time
}

func New(cfg Config, deps Deps) *Coordinator {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 100 * time.Millisecond
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5 * time.Minute
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 256
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 3 * time.Second
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = 24 * time.Hour
	}
	if deps.Engine == nil {
		deps.Engine = rules.NewStandard()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Logger,
		ctx:        ctx,
		cancel:     cancel,
		peers:      make(map[string]*peerState),
		games:      make(map[string]*gameActor),
		leaves:     make(map[string][]command),
		tombstones: make(map[string]tombstone),
	}
}

// Connect registers an unauthenticated peer.
func (c *Coordinator) Connect(p Peer) {
	c.mu.Lock()
	c.peers[p.ID()] = &peerState{peer: p, games: make(map[string]struct{})}
	c.mu.Unlock()
	c.log.Debug("peer_connected", zap.String("peer_id", p.ID()))
}

// Disconnect drops the peer's subscriptions. Seats and clocks are untouched.
func (c *Coordinator) Disconnect(p Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.peers[p.ID()]
	if !ok {
		return
	}
	delete(c.peers, p.ID())
	for gameID := range ps.games {
		if a, ok := c.games[gameID]; ok {
			cmd := command{kind: cmdLeave, peer: ps.peer, playerID: ps.playerID}
			if !a.enqueue(cmd) {
				// retried by the sweep
				c.leaves[gameID] = append(c.leaves[gameID], cmd)
			}
		}
	}
	c.log.Debug("peer_disconnected", zap.String("peer_id", p.ID()), zap.String("player_id", ps.playerID))
}

// Handle processes one intent from p. Game-scoped intents are handed to the game's
// actor and answered asynchronously through p.Send.
func (c *Coordinator) Handle(ctx context.Context, p Peer, in matchproto.Intent) {
	if in.Type == matchproto.IntentAuthenticate {
		c.authenticate(ctx, p, in)
		return
	}
	if !in.Type.GameScoped() {
		c.reply(p, errorEvent(in, domain.Errf(domain.KindBadRequest, "unknown intent type")))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.peers[p.ID()]
	if !ok || ps.playerID == "" {
		c.reply(p, errorEvent(in, domain.Errf(domain.KindAuth, "authenticate first")))
		return
	}
	if in.GameID == "" {
		c.reply(p, errorEvent(in, domain.Errf(domain.KindBadRequest, "game_id required")))
		return
	}

	a, ok := c.games[in.GameID]
	if !ok {
		if in.Type != matchproto.IntentJoinGame {
			c.reply(p, errorEvent(in, domain.Errf(domain.KindNotFound, "unknown game")))
			return
		}
		a = c.spawnLocked(in.GameID)
	}
	if in.Type == matchproto.IntentJoinGame {
		ps.games[in.GameID] = struct{}{}
	}
	if !a.enqueue(command{kind: cmdIntent, peer: p, playerID: ps.playerID, intent: in}) {
		c.reply(p, errorEvent(in, domain.Errf(domain.KindInternal, "game is busy, retry")))
	}
}

func (c *Coordinator) authenticate(ctx context.Context, p Peer, in matchproto.Intent) {
	c.mu.Lock()
	ps, ok := c.peers[p.ID()]
	already := ok && ps.playerID != ""
	c.mu.Unlock()
	if !ok {
		return
	}
	if already {
		c.reply(p, authError(in, "already authenticated"))
		return
	}
	if c.deps.Auth == nil {
		c.reply(p, authError(in, "authentication unavailable"))
		return
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.IOTimeout)
	defer cancel()
	playerID, err := c.deps.Auth.Authenticate(actx, in.Token)
	if err != nil || playerID == "" {
		c.log.Info("auth_failed", zap.String("peer_id", p.ID()), zap.Error(err))
		msg := "invalid credential"
		var de *domain.Error
		if errors.As(err, &de) {
			msg = de.Message
		}
		c.reply(p, authError(in, msg))
		return
	}

	c.mu.Lock()
	if ps, ok = c.peers[p.ID()]; ok {
		ps.playerID = playerID
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Info("auth_success", zap.String("peer_id", p.ID()), zap.String("player_id", playerID))
	c.reply(p, matchproto.Event{
		Type:         matchproto.EventAuthSuccess,
		RequestID:    in.RequestID,
		PlayerID:     playerID,
		ServerTimeMs: c.deps.Now().UnixMilli(),
	})
}

// Snapshot returns the current public state of a game without joining it.
func (c *Coordinator) Snapshot(ctx context.Context, gameID string) (matchproto.GameState, error) {
	c.mu.Lock()
	a, ok := c.games[gameID]
	var reply chan snapshotReply
	if ok {
		reply = make(chan snapshotReply, 1)
		if !a.enqueue(command{kind: cmdSnapshot, reply: reply}) {
			ok = false
		}
	}
	c.mu.Unlock()

	if ok {
		select {
		case r := <-reply:
			return r.state, r.err
		case <-ctx.Done():
			return matchproto.GameState{}, ctx.Err()
		}
	}

	rec, found := c.tombstone(gameID)
	if !found && c.deps.Store != nil {
		var err error
		rec, found, err = c.deps.Store.Load(ctx, gameID)
		if err != nil {
			return matchproto.GameState{}, err
		}
	}
	if !found {
		return matchproto.GameState{}, domain.ErrNotFound
	}
	m, err := match.Restore(rec, c.deps.Engine, match.WithNow(c.deps.Now))
	if err != nil {
		return matchproto.GameState{}, err
	}
	return m.Snapshot(), nil
}

// PlayerGames lists the games the store has indexed for playerID.
func (c *Coordinator) PlayerGames(ctx context.Context, playerID string) ([]string, error) {
	if c.deps.Store == nil {
		return nil, nil
	}
	return c.deps.Store.GamesByPlayer(ctx, playerID)
}

// ActiveGames reports how many games are loaded.
func (c *Coordinator) ActiveGames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.games)
}

// Run drives the flag sweep until ctx ends, then stops every game actor.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweep()
		}
	}
}

// Close stops all actors and waits for them.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) sweep() {
	now := c.deps.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for gameID, cmds := range c.leaves {
		a, ok := c.games[gameID]
		if !ok {
			delete(c.leaves, gameID)
			continue
		}
		for len(cmds) > 0 && a.enqueue(cmds[0]) {
			cmds = cmds[1:]
		}
		if len(cmds) == 0 {
			delete(c.leaves, gameID)
		} else {
			c.leaves[gameID] = cmds
		}
	}
	for _, a := range c.games {
		if a.due(now) || a.evictable(now, c.cfg.Retention) {
			a.enqueue(command{kind: cmdTick})
		}
	}
	for gameID, ts := range c.tombstones {
		if now.Sub(ts.at) >= c.cfg.TombstoneTTL {
			delete(c.tombstones, gameID)
		}
	}
}

func (c *Coordinator) tombstone(gameID string) (match.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.tombstones[gameID]
	return ts.rec, ok
}

func (c *Coordinator) spawnLocked(gameID string) *gameActor {
	a := newGameActor(c, gameID)
	c.games[gameID] = a
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		a.run(c.ctx)
	}()
	return a
}

// release removes a from the registry if nothing is queued for it. Called by the
// actor itself; returning true means the actor must exit.
func (c *Coordinator) release(a *gameActor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(a.inbox) > 0 || len(c.leaves[a.id]) > 0 {
		return false
	}
	if cur, ok := c.games[a.id]; ok && cur == a {
		delete(c.games, a.id)
	}
	if a.m != nil && a.m.Terminated() {
		c.tombstones[a.id] = tombstone{rec: a.m.Record(), at: c.deps.Now()}
	}
	for _, ps := range c.peers {
		delete(ps.games, a.id)
	}
	return true
}

// reply delivers ev to p, closing p if its queue is full.
func (c *Coordinator) reply(p Peer, ev matchproto.Event) {
	if ev.ServerTimeMs == 0 {
		ev.ServerTimeMs = c.deps.Now().UnixMilli()
	}
	if !p.Send(ev) {
		c.log.Warn("peer_send_failed", zap.String("peer_id", p.ID()), zap.String("event", string(ev.Type)))
		p.Close("outbound queue full")
	}
}

func authError(in matchproto.Intent, msg string) matchproto.Event {
	return matchproto.Event{
		Type:      matchproto.EventAuthError,
		RequestID: in.RequestID,
		Error:     &matchproto.ErrorBody{Code: string(domain.KindAuth), Message: msg, Context: string(in.Type)},
	}
}

func errorEvent(in matchproto.Intent, err error) matchproto.Event {
	kind := domain.KindOf(err)
	msg := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	return matchproto.Event{
		Type:      matchproto.EventError,
		GameID:    in.GameID,
		RequestID: in.RequestID,
		Error:     &matchproto.ErrorBody{Code: string(kind), Message: msg, Context: string(in.Type)},
	}
}

// NewPeerID returns a fresh connection id.
func NewPeerID() string { return uuid.NewString() }
