package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/pkg/matchproto"
)

// waitDormant blocks until the actor for gameID has processed the pending leaves.
func waitDormant(t *testing.T, c *Coordinator, gameID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		a, ok := c.games[gameID]
		dormant := ok && a.dormant.Load()
		c.mu.Unlock()
		if dormant {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never went dormant", gameID)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitEvicted(t *testing.T, c *Coordinator, gameID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		_, ok := c.games[gameID]
		c.mu.Unlock()
		if !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s still loaded", gameID)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitDrained(t *testing.T, c *Coordinator, gameID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		a, ok := c.games[gameID]
		n := 0
		if ok {
			n = len(a.inbox) + len(c.leaves[gameID])
		}
		c.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s mailbox never drained", gameID)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func loaded(c *Coordinator, gameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.games[gameID]
	return ok
}

func TestWaitingGameKeepsSeatWhileEveryoneIsAway(t *testing.T) {
	now := &syncNow{t: time.UnixMilli(1_700_000_000_000)}
	c := newCoordinator(t, Config{SweepInterval: 5 * time.Millisecond, Retention: time.Minute}, Deps{Now: now.Now})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	w := login(t, c, "w")
	send(c, w, matchproto.IntentJoinGame, "g1")
	w.expect(t, matchproto.EventGameState)
	c.Disconnect(w)

	now.Advance(2 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	if !loaded(c, "g1") {
		t.Fatalf("waiting game with a held seat was evicted")
	}

	x := login(t, c, "x")
	send(c, x, matchproto.IntentJoinGame, "g1")
	if st := x.expect(t, matchproto.EventGameState); st.Role != string(domain.RoleBlack) {
		t.Fatalf("newcomer role=%s", st.Role)
	}
	w2 := login(t, c, "w")
	send(c, w2, matchproto.IntentJoinGame, "g1")
	if st := w2.expect(t, matchproto.EventGameState); st.Role != string(domain.RoleWhite) {
		t.Fatalf("returning player role=%s", st.Role)
	}
}

func TestEvictedFinishedGameCannotRestart(t *testing.T) {
	now := &syncNow{t: time.UnixMilli(1_700_000_000_000)}
	c := newCoordinator(t, Config{SweepInterval: 5 * time.Millisecond, Retention: time.Minute}, Deps{Now: now.Now})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	w, b := seatBoth(t, c, "g1")
	send(c, w, matchproto.IntentResign, "g1")
	w.expect(t, matchproto.EventGameOver)
	b.expect(t, matchproto.EventGameOver)
	c.Disconnect(w)
	c.Disconnect(b)
	waitDormant(t, c, "g1")
	now.Advance(2 * time.Minute)
	waitEvicted(t, c, "g1")

	st, err := c.Snapshot(context.Background(), "g1")
	if err != nil || st.Status != matchproto.StatusTerminated {
		t.Fatalf("snapshot after eviction = %+v, %v", st, err)
	}

	w2 := login(t, c, "w")
	send(c, w2, matchproto.IntentJoinGame, "g1")
	ev := w2.expect(t, matchproto.EventGameState)
	if ev.Role != string(domain.RoleWhite) || ev.State.Status != matchproto.StatusTerminated || ev.State.Result == nil {
		t.Fatalf("rejoin state role=%s state=%+v", ev.Role, ev.State)
	}
	send(c, w2, matchproto.IntentMakeMove, "g1", move("e2e4"))
	if e := w2.expect(t, matchproto.EventError); e.Error.Code != string(domain.KindGameOver) {
		t.Fatalf("move after revival code=%s", e.Error.Code)
	}
}

func TestTombstonesExpire(t *testing.T) {
	now := &syncNow{t: time.UnixMilli(1_700_000_000_000)}
	c := newCoordinator(t, Config{TombstoneTTL: time.Hour}, Deps{Now: now.Now})
	c.tombstones["old"] = tombstone{at: now.Now()}
	now.Advance(2 * time.Hour)
	c.sweep()
	if _, ok := c.tombstone("old"); ok {
		t.Fatalf("expired tombstone kept")
	}
}

// gatedSeeder holds the first load until open is closed.
type gatedSeeder struct{ open chan struct{} }

func (s gatedSeeder) Pairing(ctx context.Context, gameID string) (domain.Pairing, bool, error) {
	select {
	case <-s.open:
	case <-ctx.Done():
		return domain.Pairing{}, false, ctx.Err()
	}
	return domain.Pairing{GameID: gameID, TimeControl: domain.TimeControl{InitialMs: 60_000}}, true, nil
}

func TestLeaveRetriedWhenMailboxFull(t *testing.T) {
	seeder := gatedSeeder{open: make(chan struct{})}
	c := newCoordinator(t, Config{MailboxSize: 1, IOTimeout: 5 * time.Second}, Deps{Seeder: seeder})

	a := login(t, c, "a")
	send(c, a, matchproto.IntentJoinGame, "g1")
	c.Disconnect(a)
	c.mu.Lock()
	pending := len(c.leaves["g1"])
	c.mu.Unlock()
	if pending != 1 {
		t.Fatalf("pending leaves=%d", pending)
	}

	close(seeder.open)
	a.expect(t, matchproto.EventGameState)
	c.sweep()
	waitDrained(t, c, "g1")

	b := login(t, c, "b")
	send(c, b, matchproto.IntentJoinGame, "g1")
	b.expect(t, matchproto.EventGameState)
	a.quiet(t)
}
