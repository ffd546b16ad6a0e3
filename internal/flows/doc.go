// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunCreateSession, RunVerifyEmail, RunCompletePasswordReset,
// etc.) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. Missing optional dependencies are
// filled with no-ops by the matching normalize function.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, JWT manager, code and
// reset stores, limiters, notifier, audit dispatcher, and metrics. They do NOT
// own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goAccount (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
