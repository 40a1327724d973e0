// Package redis provides a letterstats.Store on Redis so several service
// instances share one child's statistics.
//
// Each letter is a hash "<prefix>:letter:<letter>" with the fields total,
// mistakes and last_seen (unix milliseconds). The set "<prefix>:letters"
// indexes the known letters.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/readalong/internal/letterstats"
)

var _ letterstats.Store = (*Store)(nil)

// DefaultPrefix namespaces the keys.
const DefaultPrefix = "readalong"

// Store is safe for concurrent use.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
}

// New wraps an existing client. An empty prefix uses [DefaultPrefix].
func New(rdb goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial connects to addr and pings the server.
func Dial(ctx context.Context, addr, password, prefix string) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("letterstats redis: ping: %w", err)
	}
	return New(rdb, prefix), nil
}

func (s *Store) indexKey() string { return s.prefix + ":letters" }
func (s *Store) letterKey(letter string) string { return s.prefix + ":letter:" + letter }

// Record implements [letterstats.Store]. The counters are updated in one
// MULTI/EXEC transaction.
func (s *Store) Record(ctx context.Context, letter string, correct bool, at time.Time) (letterstats.Stat, error) {
	letter = letterstats.Normalize(letter)
	if letter == "" {
		return letterstats.Stat{}, nil
	}
	key := s.letterKey(letter)
	var mistake int64
	if !correct {
		mistake = 1
	}

	var total, mistakes *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		total = pipe.HIncrBy(ctx, key, "total", 1)
		mistakes = pipe.HIncrBy(ctx, key, "mistakes", mistake)
		pipe.HSet(ctx, key, "last_seen", at.UnixMilli())
		pipe.SAdd(ctx, s.indexKey(), letter)
		return nil
	})
	if err != nil {
		return letterstats.Stat{}, fmt.Errorf("letterstats redis: record %q: %w", letter, err)
	}
	return letterstats.Stat{
		Letter:   letter,
		Total:    int(total.Val()),
		Mistakes: int(mistakes.Val()),
		LastSeen: time.UnixMilli(at.UnixMilli()),
	}, nil
}

// All implements [letterstats.Store].
func (s *Store) All(ctx context.Context) ([]letterstats.Stat, error) {
	letters, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("letterstats redis: list letters: %w", err)
	}
	if len(letters) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(letters))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, l := range letters {
			cmds[i] = pipe.HGetAll(ctx, s.letterKey(l))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("letterstats redis: read letters: %w", err)
	}

	out := make([]letterstats.Stat, 0, len(letters))
	for i, l := range letters {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		st := letterstats.Stat{Letter: l}
		st.Total, _ = strconv.Atoi(fields["total"])
		st.Mistakes, _ = strconv.Atoi(fields["mistakes"])
		if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
			st.LastSeen = time.UnixMilli(ms)
		}
		out = append(out, st)
	}
	return out, nil
}

// Clear implements [letterstats.Store].
func (s *Store) Clear(ctx context.Context) error {
	letters, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("letterstats redis: list letters: %w", err)
	}
	keys := []string{s.indexKey()}
	for _, l := range letters {
		keys = append(keys, s.letterKey(l))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("letterstats redis: clear: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }
