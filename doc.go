// Package goAccount is the account-verification and session-credential core
// of an identity backend: session credentials, single-use email verification
// codes, a bounded-retry password reset and password-independent account keys.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goAccount is the public surface. It exposes [Engine], [Builder], [Config],
// the [AccountStore] contract and value types. Flow orchestration, Redis
// stores, rate limiting and audit dispatch live under internal/ and are never
// exported. Collaborators sit in sibling packages: keys (key wrapping),
// metadata (links, headers and locales), notify (email composition and
// delivery), accounts (gorm AccountStore), middleware and httpapi (HTTP).
//
// # Atomicity
//
// Every counter change and every single-use consumption is one Redis Lua
// script. The Engine holds no locks and no per-account state between calls.
package goAccount
