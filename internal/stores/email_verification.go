package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	"github.com/redis/go-redis/v9"
)

var (
	ErrVerificationNotFound         = errors.New("verification code not found")
	ErrVerificationMismatch         = errors.New("verification code mismatch")
	ErrVerificationRedisUnavailable = errors.New("verification redis unavailable")
)

// VerificationRecord is the unconsumed verification code of one account.
type VerificationRecord struct {
	AccountID  string
	Code       string
	Service    string
	RedirectTo string
	Locale     string
	CreatedAt  int64
}

// issueVerificationLua returns the existing record or creates one.
// KEYS[1] = record key
// ARGV = code, hash, service, redirect, locale, created, ttl ms
//
// Returns {created(0|1), code, service, redirect, locale, created}.
var issueVerificationLua = redis.NewScript(`
local created = 0
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1],
    'code', ARGV[1], 'hash', ARGV[2],
    'service', ARGV[3], 'redirect', ARGV[4], 'locale', ARGV[5],
    'created', ARGV[6])
  if tonumber(ARGV[7]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[7])
  end
  created = 1
end
local v = redis.call('HMGET', KEYS[1], 'code', 'service', 'redirect', 'locale', 'created')
return {created, v[1], v[2], v[3], v[4], v[5]}
`)

// consumeVerificationLua deletes the record when the hash matches.
// KEYS[1] = record key
// ARGV[1] = hash of the submitted code
//
// Returns {status} where status is "missing" or "mismatch", or
// {"ok", code, service, redirect, locale, created} and the record is gone.
var consumeVerificationLua = redis.NewScript(`
local h = redis.call('HGET', KEYS[1], 'hash')
if not h then
  return {'missing'}
end
if h ~= ARGV[1] then
  return {'mismatch'}
end
local v = redis.call('HMGET', KEYS[1], 'code', 'service', 'redirect', 'locale', 'created')
redis.call('DEL', KEYS[1])
return {'ok', v[1], v[2], v[3], v[4], v[5]}
`)

// EmailVerificationStore keeps at most one code per account.
type EmailVerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEmailVerificationStore(redisClient redis.UniversalClient, prefix string) *EmailVerificationStore {
	if prefix == "" {
		prefix = "avc"
	}
	return &EmailVerificationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *EmailVerificationStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Issue stores record unless the account already holds a code, in which case
// the stored record is returned untouched. created reports which happened.
func (s *EmailVerificationStore) Issue(
	ctx context.Context,
	record VerificationRecord,
	ttl time.Duration,
) (stored VerificationRecord, created bool, err error) {
	raw, err := issueVerificationLua.Run(ctx, s.redis, []string{s.key(record.AccountID)},
		record.Code,
		internal.HashCode(record.Code),
		record.Service,
		record.RedirectTo,
		record.Locale,
		strconv.FormatInt(record.CreatedAt, 10),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return VerificationRecord{}, false, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}

	fields, err := scriptResult(raw)
	if err != nil || len(fields) != 6 {
		return VerificationRecord{}, false, fmt.Errorf("%w: malformed issue reply", ErrVerificationRedisUnavailable)
	}

	stored = verificationFromFields(record.AccountID, fields[1:])
	return stored, fields[0] == "1", nil
}

// Consume removes the account's code if code matches it and returns the
// removed record.
func (s *EmailVerificationStore) Consume(ctx context.Context, accountID, code string) (VerificationRecord, error) {
	raw, err := consumeVerificationLua.Run(ctx, s.redis, []string{s.key(accountID)}, internal.HashCode(code)).Result()
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}

	fields, err := scriptResult(raw)
	if err != nil || len(fields) == 0 {
		return VerificationRecord{}, fmt.Errorf("%w: malformed consume reply", ErrVerificationRedisUnavailable)
	}

	switch fields[0] {
	case "ok":
		if len(fields) != 6 {
			return VerificationRecord{}, fmt.Errorf("%w: malformed consume reply", ErrVerificationRedisUnavailable)
		}
		return verificationFromFields(accountID, fields[1:]), nil
	case "mismatch":
		return VerificationRecord{}, ErrVerificationMismatch
	default:
		return VerificationRecord{}, ErrVerificationNotFound
	}
}

// Get returns the account's unconsumed code.
func (s *EmailVerificationStore) Get(ctx context.Context, accountID string) (VerificationRecord, error) {
	values, err := s.redis.HMGet(ctx, s.key(accountID), "code", "service", "redirect", "locale", "created").Result()
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	if values[0] == nil {
		return VerificationRecord{}, ErrVerificationNotFound
	}

	fields, err := scriptResult(values)
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	return verificationFromFields(accountID, fields), nil
}

func verificationFromFields(accountID string, f []string) VerificationRecord {
	return VerificationRecord{
		AccountID:  accountID,
		Code:       f[0],
		Service:    f[1],
		RedirectTo: f[2],
		Locale:     f[3],
		CreatedAt:  parseInt64(f[4]),
	}
}
