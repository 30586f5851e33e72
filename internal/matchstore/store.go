// Package matchstore keeps match snapshots in Redis so a game outlives its connections
// and the coordinator process.
package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-match/internal/match"
)

// ErrStale is returned when a newer snapshot of the game is already stored.
var ErrStale = errors.New("matchstore: stale snapshot")

const (
	defaultTTL = 24 * time.Hour
	maxRetries = 3
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to redisURL (redis:// or rediss://) and pings it.
func New(redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for match store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, ttl), nil
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Save writes rec unless a snapshot with a higher version is stored, and indexes
// both seated players.
func (s *Store) Save(ctx context.Context, rec match.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	key := gameKey(rec.ID)

	txf := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cur match.Record
			if jerr := json.Unmarshal(prev, &cur); jerr == nil && cur.Version > rec.Version {
				return ErrStale
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, s.ttl)
			for _, player := range []string{rec.Seats.White, rec.Seats.Black} {
				if strings.TrimSpace(player) == "" {
					continue
				}
				p.SAdd(ctx, idxUserKey(player), rec.ID)
				// 인덱스 키 TTL도 스냅샷과 함께 갱신
				p.Expire(ctx, idxUserKey(player), s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("save %s: %w", rec.ID, err)
}

// Load returns the stored record of gameID.
func (s *Store) Load(ctx context.Context, gameID string) (match.Record, bool, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return match.Record{}, false, nil
	}
	if err != nil {
		return match.Record{}, false, err
	}
	var rec match.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return match.Record{}, false, fmt.Errorf("decode %s: %w", gameID, err)
	}
	return rec, true, nil
}

// GamesByPlayer lists the player's stored games, most recently updated first.
// Index entries whose snapshot has expired are pruned.
func (s *Store) GamesByPlayer(ctx context.Context, playerID string) ([]string, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, nil
	}
	key := idxUserKey(playerID)
	ids, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	type entry struct {
		id      string
		updated time.Time
	}
	list := make([]entry, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = s.rdb.SRem(ctx, key, id).Err()
			continue
		}
		list = append(list, entry{id: id, updated: rec.UpdatedAt})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].updated.Equal(list[j].updated) {
			return list[i].id < list[j].id
		}
		return list[i].updated.After(list[j].updated)
	})
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.id)
	}
	return out, nil
}

func gameKey(id string) string        { return "match:game:" + strings.TrimSpace(id) }
func idxUserKey(userID string) string { return "match:index:user:" + strings.TrimSpace(userID) }

// ParseRedisURL converts redis://[:password@]host:port[/db] into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
