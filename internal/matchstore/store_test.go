package matchstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/match"
	"github.com/park285/cheese-match/internal/rules"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := New(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	if err != nil {
		t.Fatalf("matchstore.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func playedRecord(t *testing.T, id string, moves ...string) match.Record {
	t.Helper()
	m := match.New(id, domain.TimeControl{InitialMs: 60_000}, rules.NewStandard())
	m.Join("w")
	m.Join("b")
	for i, mv := range moves {
		if _, err := m.Move([]string{"w", "b"}[i%2], rules.MoveRequest{Notation: mv}); err != nil {
			t.Fatalf("move %s: %v", mv, err)
		}
	}
	return m.Record()
}

func TestSaveLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	rec := playedRecord(t, "g1", "e2e4", "e7e5")
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Version != rec.Version || len(got.Moves) != 2 || got.Seats != rec.Seats {
		t.Fatalf("loaded=%+v", got)
	}
	if ttl := mr.TTL(gameKey("g1")); ttl != time.Hour {
		t.Fatalf("ttl=%v", ttl)
	}
	if _, ok, _ := s.Load(ctx, "missing"); ok {
		t.Fatalf("missing game found")
	}
}

func TestSave_RejectsOlderVersion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	newer := playedRecord(t, "g1", "e2e4", "e7e5")
	older := playedRecord(t, "g1", "e2e4")
	if err := s.Save(ctx, newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}
	if err := s.Save(ctx, older); !errors.Is(err, ErrStale) {
		t.Fatalf("save older err=%v", err)
	}
	got, _, _ := s.Load(ctx, "g1")
	if len(got.Moves) != 2 {
		t.Fatalf("older snapshot overwrote newer")
	}
}

func TestGamesByPlayer(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	a := playedRecord(t, "a")
	b := playedRecord(t, "b", "d2d4")
	b.UpdatedAt = a.UpdatedAt.Add(time.Minute)
	for _, rec := range []match.Record{a, b} {
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}
	ids, err := s.GamesByPlayer(ctx, "w")
	if err != nil {
		t.Fatalf("GamesByPlayer: %v", err)
	}
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("ids=%v", ids)
	}

	mr.Del(gameKey("a"))
	ids, _ = s.GamesByPlayer(ctx, "b")
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("after expiry ids=%v", ids)
	}
	if members, _ := mr.Members(idxUserKey("b")); len(members) != 1 {
		t.Fatalf("index not pruned: %v", members)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("opts=%+v", opts)
	}
	if _, err := ParseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
