package chathub

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror copies presence into Redis: a set of online user ids and a
// hash of last-seen times, both under prefix.
type RedisMirror struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMirror(rdb *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{rdb: rdb, prefix: prefix}
}

func (m *RedisMirror) onlineKey() string   { return m.prefix + ":online" }
func (m *RedisMirror) lastSeenKey() string { return m.prefix + ":last_seen" }

// Reset clears the online set left behind by a previous process.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.rdb.Del(ctx, m.onlineKey()).Err()
}

func (m *RedisMirror) Online(ctx context.Context, userID string) error {
	return m.rdb.SAdd(ctx, m.onlineKey(), userID).Err()
}

func (m *RedisMirror) Offline(ctx context.Context, userID string, at time.Time) error {
	_, err := m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, m.onlineKey(), userID)
		p.HSet(ctx, m.lastSeenKey(), userID, at.UTC().Format(time.RFC3339Nano))
		return nil
	})
	return err
}

// OnlineUsers lists the mirrored online set.
func (m *RedisMirror) OnlineUsers(ctx context.Context) ([]string, error) {
	return m.rdb.SMembers(ctx, m.onlineKey()).Result()
}

// LastSeen returns the mirrored last-seen time of userID; ok is false when
// none was recorded.
func (m *RedisMirror) LastSeen(ctx context.Context, userID string) (at time.Time, ok bool, err error) {
	v, err := m.rdb.HGet(ctx, m.lastSeenKey(), userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err = time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}
