// Package middleware exposes net/http adapters that authenticate requests
// with a goAccount session credential.
//
// # Guards
//
//   - [Guard]: reads the Authorization bearer credential, calls
//     Engine.ValidateSession and stores the session in the request context.
//   - [RequireVerified]: runs after Guard and rejects accounts whose email
//     is not verified yet.
//
// Rejections are JSON bodies of the form {"code","errno","message"}.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// parse credentials or touch Redis itself.
package middleware
