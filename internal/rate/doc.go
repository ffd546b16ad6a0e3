// Package rate provides the Redis fixed-window counter shared by every
// limiter, plus the login failure limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:  failed logins per email
//   - ali: failed logins per IP
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goAccount module.
package rate
