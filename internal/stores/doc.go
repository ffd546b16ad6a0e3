// Package stores provides the Redis-backed stores for single-use email
// verification codes and password reset tokens.
//
// # Design
//
// Records are Redis hashes with a TTL. Every state change (issue, consume,
// tries decrement, state transition) runs as one Lua script, so concurrent
// callers against the same record serialize on Redis and never observe a
// half-applied update. Codes are compared by their sha256 digest inside the
// script.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity for transient challenge
// records. It does NOT generate codes, rate limit, send notifications or
// decide what an error means to a client; those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import goAccount or any sibling internal package.
//   - Log plaintext codes.
package stores
