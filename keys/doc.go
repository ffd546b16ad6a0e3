// Package keys derives and rewraps per-account key material.
//
// Every account carries two keys:
//
//   - kA, derived from a server master secret and the account's KeySalt. It does
//     not depend on the password and never changes.
//   - wrapKb, derived from the stretched password and the account's
//     PasswordSalt. A password reset draws a fresh PasswordSalt, so wrapKb
//     changes on every reset.
//
// Rewrap reads the stored kA back through [StableKeyReader] and re-emits it; it
// never recomputes kA from a password.
package keys
