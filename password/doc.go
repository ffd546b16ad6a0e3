// Package password holds the account password primitives: an Argon2id
// verifier stored in PHC form and the deterministic stretch used to derive
// password-bound key material.
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verifier hashes carry their own parameters, so [Argon2.Verify] keeps working
// after the configured cost changes; [Argon2.NeedsUpgrade] reports when a stored
// verifier was produced with weaker parameters.
//
// This package never stores passwords and never logs them.
package password
