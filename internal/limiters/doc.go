// Package limiters provides the domain rate limiters built on top of the
// internal/rate fixed-window counter.
//
// One [Limiter] type enforces a [Policy]; the policies in use are
//
//   - [ResetRequests]: per email (and optionally per IP) reset requests.
//   - [VerifyResends]: per account verification resends.
//   - [AccountCreation]: per email (and optionally per IP) sign-ups.
//
// A nil *Limiter allows everything, so a disabled policy is just a nil
// field. Limiters return rate.ErrRateLimited and wrap backend failures in
// rate.ErrRedisUnavailable.
//
// # What this package must NOT do
//
//   - Import goAccount or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
