// Package internal contains helpers private to goAccount: identifier and code
// generation shared by the Engine and its stores.
//
// # Sub-packages
//
//   - audit: async event dispatch and sinks
//   - flows: flow orchestrators behind each Engine operation
//   - limiters: Redis fixed-window limiters
//   - stores: Redis stores for verification codes and reset tokens
package internal
