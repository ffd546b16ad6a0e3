// Package jwt signs and verifies session credentials. A credential carries the
// session id and account id; the Engine still checks the session record, so a
// valid signature alone never authenticates a destroyed session.
package jwt
