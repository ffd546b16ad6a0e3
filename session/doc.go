// Package session persists login sessions in Redis.
//
// Each session lives under <prefix>:<sid> as a compact binary record with a
// TTL equal to its absolute lifetime, and every account keeps an index set
// <prefix>u:<accountID> of its session ids. Deletion of one session and of all
// sessions of an account run as Lua scripts, so a concurrent validation never
// observes a half-deleted state.
//
// This package does not interpret credentials or make authentication
// decisions; that belongs to the Engine.
package session
