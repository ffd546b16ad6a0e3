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

// Reset token states.
const (
	ResetRequested = "requested"
	ResetVerified  = "verified"
	ResetCompleted = "completed"
	ResetExhausted = "exhausted"
)

var (
	ErrResetNotFound         = errors.New("reset token not found")
	ErrResetNotVerified      = errors.New("reset token not verified")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is one reset token.
type PasswordResetRecord struct {
	TokenID    string
	AccountID  string
	Email      string
	Code       string
	Tries      int
	State      string
	Service    string
	RedirectTo string
	Locale     string
	CreatedAt  int64
}

// Live reports whether the token can still be verified or completed.
func (r PasswordResetRecord) Live() bool {
	return r.State == ResetRequested || r.State == ResetVerified
}

// VerifyResult is the outcome of one code check.
type VerifyResult struct {
	Matched bool
	// Tries is the remaining budget after this check.
	Tries int
	// Exhausted is true only for the check that moved the token to exhausted.
	Exhausted bool
}

// resetRecordLua is shared by the scripts that return a full record.
const resetRecordLua = `
local function record(tk, tid)
  local v = redis.call('HMGET', tk, 'uid', 'email', 'code', 'tries', 'state',
    'service', 'redirect', 'locale', 'created')
  return {tid, v[1], v[2], v[3], v[4], v[5], v[6], v[7], v[8], v[9]}
end
`

// issueResetLua returns the account's live token or creates a new one.
// KEYS[1] = account index key
// ARGV[1] = token key prefix, ARGV[2] = new token id
// ARGV[3..12] = uid, email, code, hash, tries, service, redirect, locale, created, ttl ms
//
// Returns {created(0|1), record...}.
var issueResetLua = redis.NewScript(resetRecordLua + `
local tid = redis.call('GET', KEYS[1])
if tid then
  local st = redis.call('HGET', ARGV[1] .. tid, 'state')
  if st == 'requested' or st == 'verified' then
    local out = record(ARGV[1] .. tid, tid)
    table.insert(out, 1, 0)
    return out
  end
end
local tk = ARGV[1] .. ARGV[2]
redis.call('HSET', tk,
  'uid', ARGV[3], 'email', ARGV[4], 'code', ARGV[5], 'hash', ARGV[6],
  'tries', ARGV[7], 'state', 'requested',
  'service', ARGV[8], 'redirect', ARGV[9], 'locale', ARGV[10],
  'created', ARGV[11])
redis.call('PEXPIRE', tk, ARGV[12])
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[12])
local out = record(tk, ARGV[2])
table.insert(out, 1, 1)
return out
`)

// verifyResetLua checks a code and moves the state machine.
// KEYS[1] = token key
// ARGV[1] = hash of the submitted code
//
// Returns {status, tries, exhaustedNow} with status -1 (not live),
// 0 (mismatch) or 1 (match).
var verifyResetLua = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'state')
if st ~= 'requested' and st ~= 'verified' then
  return {-1, 0, 0}
end
if redis.call('HGET', KEYS[1], 'hash') == ARGV[1] then
  redis.call('HSET', KEYS[1], 'state', 'verified')
  return {1, tonumber(redis.call('HGET', KEYS[1], 'tries')), 0}
end
local n = redis.call('HINCRBY', KEYS[1], 'tries', -1)
if n <= 0 then
  redis.call('HSET', KEYS[1], 'tries', 0, 'state', 'exhausted')
  return {0, 0, 1}
end
return {0, n, 0}
`)

// beginCompleteLua performs the verified -> completed transition.
// KEYS[1] = token key, ARGV[1] = token id
//
// Returns {status, record...} where status is "ok" or the blocking state
// ("missing" when the token does not exist).
var beginCompleteLua = redis.NewScript(resetRecordLua + `
local st = redis.call('HGET', KEYS[1], 'state')
if not st then
  return {'missing'}
end
if st ~= 'verified' then
  return {st}
end
redis.call('HSET', KEYS[1], 'state', 'completed')
local out = record(KEYS[1], ARGV[1])
table.insert(out, 1, 'ok')
return out
`)

// revertCompleteLua undoes beginCompleteLua.
// KEYS[1] = token key
var revertCompleteLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') == 'completed' then
  redis.call('HSET', KEYS[1], 'state', 'verified')
  return 1
end
return 0
`)

// finishResetLua removes a completed token and its index entry.
// KEYS[1] = token key, KEYS[2] = account index key, ARGV[1] = token id
var finishResetLua = redis.NewScript(`
redis.call('DEL', KEYS[1])
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return 1
`)

// PasswordResetStore persists reset tokens. Exhausted tokens stay behind as
// tombstones until their TTL so later checks keep failing uniformly.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) tokenPrefix() string {
	return s.prefix + ":t:"
}

func (s *PasswordResetStore) tokenKey(tokenID string) string {
	return s.tokenPrefix() + tokenID
}

func (s *PasswordResetStore) accountKey(accountID string) string {
	return s.prefix + ":a:" + accountID
}

// Issue returns the account's live token, or stores record as a new token in
// state requested. record.TokenID is used only when a token is created.
func (s *PasswordResetStore) Issue(
	ctx context.Context,
	record PasswordResetRecord,
	ttl time.Duration,
) (stored PasswordResetRecord, created bool, err error) {
	if ttl <= 0 {
		return PasswordResetRecord{}, false, errors.New("reset ttl must be > 0")
	}
	if record.Tries <= 0 {
		return PasswordResetRecord{}, false, errors.New("reset tries must be > 0")
	}

	raw, err := issueResetLua.Run(ctx, s.redis, []string{s.accountKey(record.AccountID)},
		s.tokenPrefix(),
		record.TokenID,
		record.AccountID,
		record.Email,
		record.Code,
		internal.HashCode(record.Code),
		record.Tries,
		record.Service,
		record.RedirectTo,
		record.Locale,
		strconv.FormatInt(record.CreatedAt, 10),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return PasswordResetRecord{}, false, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	fields, err := scriptResult(raw)
	if err != nil || len(fields) != 11 {
		return PasswordResetRecord{}, false, fmt.Errorf("%w: malformed issue reply", ErrResetRedisUnavailable)
	}
	return resetFromFields(fields[1:]), fields[0] == "1", nil
}

// Verify checks code against the token. A token that is not live returns
// ErrResetNotFound whatever the code.
func (s *PasswordResetStore) Verify(ctx context.Context, tokenID, code string) (VerifyResult, error) {
	raw, err := verifyResetLua.Run(ctx, s.redis, []string{s.tokenKey(tokenID)}, internal.HashCode(code)).Result()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	fields, err := scriptResult(raw)
	if err != nil || len(fields) != 3 {
		return VerifyResult{}, fmt.Errorf("%w: malformed verify reply", ErrResetRedisUnavailable)
	}

	switch fields[0] {
	case "-1":
		return VerifyResult{}, ErrResetNotFound
	case "1":
		return VerifyResult{Matched: true, Tries: int(parseInt64(fields[1]))}, nil
	default:
		return VerifyResult{
			Tries:     int(parseInt64(fields[1])),
			Exhausted: fields[2] == "1",
		}, nil
	}
}

// BeginComplete moves a verified token to completed and returns it. A token
// still in requested yields ErrResetNotVerified; anything else
// ErrResetNotFound.
func (s *PasswordResetStore) BeginComplete(ctx context.Context, tokenID string) (PasswordResetRecord, error) {
	raw, err := beginCompleteLua.Run(ctx, s.redis, []string{s.tokenKey(tokenID)}, tokenID).Result()
	if err != nil {
		return PasswordResetRecord{}, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	fields, err := scriptResult(raw)
	if err != nil || len(fields) == 0 {
		return PasswordResetRecord{}, fmt.Errorf("%w: malformed complete reply", ErrResetRedisUnavailable)
	}

	switch fields[0] {
	case "ok":
		if len(fields) != 11 {
			return PasswordResetRecord{}, fmt.Errorf("%w: malformed complete reply", ErrResetRedisUnavailable)
		}
		return resetFromFields(fields[1:]), nil
	case ResetRequested:
		return PasswordResetRecord{}, ErrResetNotVerified
	default:
		return PasswordResetRecord{}, ErrResetNotFound
	}
}

// RevertComplete puts a completed token back to verified.
func (s *PasswordResetStore) RevertComplete(ctx context.Context, tokenID string) error {
	if err := revertCompleteLua.Run(ctx, s.redis, []string{s.tokenKey(tokenID)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Finish deletes a token and, if it still points at it, the account index.
func (s *PasswordResetStore) Finish(ctx context.Context, accountID, tokenID string) error {
	err := finishResetLua.Run(ctx, s.redis,
		[]string{s.tokenKey(tokenID), s.accountKey(accountID)},
		tokenID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Get returns the token in whatever state it is.
func (s *PasswordResetStore) Get(ctx context.Context, tokenID string) (PasswordResetRecord, error) {
	values, err := s.redis.HMGet(ctx, s.tokenKey(tokenID),
		"uid", "email", "code", "tries", "state", "service", "redirect", "locale", "created",
	).Result()
	if err != nil {
		return PasswordResetRecord{}, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if values[4] == nil {
		return PasswordResetRecord{}, ErrResetNotFound
	}

	fields, err := scriptResult(values)
	if err != nil {
		return PasswordResetRecord{}, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return resetFromFields(append([]string{tokenID}, fields...)), nil
}

func resetFromFields(f []string) PasswordResetRecord {
	return PasswordResetRecord{
		TokenID:    f[0],
		AccountID:  f[1],
		Email:      f[2],
		Code:       f[3],
		Tries:      int(parseInt64(f[4])),
		State:      f[5],
		Service:    f[6],
		RedirectTo: f[7],
		Locale:     f[8],
		CreatedAt:  parseInt64(f[9]),
	}
}
