// Package redisstore holds the program-creation debounce markers. The
// markers are best-effort: redis being down degrades debounce to the
// database timestamp comparison, it never fails program creation.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

func markerKey(userID uint64, ptype string) string {
	return fmt.Sprintf("program:debounce:%d:%s", userID, ptype)
}

// ProgramMarker returns the program id recorded for user+type within the
// debounce window, or "" when none is recorded.
func (s *Store) ProgramMarker(ctx context.Context, userID uint64, ptype string) (string, error) {
	v, err := s.rdb.Get(ctx, markerKey(userID, ptype)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) SetProgramMarker(ctx context.Context, userID uint64, ptype, programID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, markerKey(userID, ptype), programID, ttl).Err()
}
