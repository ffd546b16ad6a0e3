package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport or server failure from Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no record exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored record cannot be decoded.
var ErrSessionCorrupt = errors.New("session corrupt")

// KEYS[1] = session key, KEYS[2] = account index key, ARGV[1] = session id
var deleteSessionLua = redis.NewScript(`
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`)

// KEYS[1] = account index key, ARGV[1] = session key prefix
var deleteAllSessionsLua = redis.NewScript(`
local ids = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, id in ipairs(ids) do
  removed = removed + redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return removed
`)

// Store is the Redis session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store writing keys under prefix ("as" when empty).
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + "u:" + accountID
}

// Save writes sess and adds it to its account index in one MULTI.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Touch records a new last-used time. It only overwrites an existing record
// and keeps its TTL, so a session deleted in between stays deleted.
func (s *Store) Touch(ctx context.Context, sess *Session, now time.Time) error {
	next := *sess
	next.LastUsedAt = now.UnixMilli()

	data, err := Encode(&next)
	if err != nil {
		return err
	}

	err = s.redis.SetArgs(ctx, s.key(sess.SessionID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess.LastUsedAt = next.LastUsedAt
	return nil
}

// Delete removes one session. Deleting a session that no longer exists
// returns ErrSessionNotFound.
func (s *Store) Delete(ctx context.Context, accountID, sessionID string) error {
	existed, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.accountKey(accountID)},
		sessionID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if existed == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteAllForUser removes every session of accountID and its index. It
// returns how many session records were removed.
func (s *Store) DeleteAllForUser(ctx context.Context, accountID string) (int, error) {
	removed, err := deleteAllSessionsLua.Run(ctx, s.redis,
		[]string{s.accountKey(accountID)},
		s.prefix+":",
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(removed), nil
}

// ActiveSessionIDs lists the indexed session ids of accountID.
func (s *Store) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}
