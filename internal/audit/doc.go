// Package audit dispatches account security events to pluggable sinks.
//
// # Components
//
//   - [Event]: one structured record (timestamp, type, account, session, IP, metadata).
//   - [Sink]: consumer interface. Channel, JSON-lines, zap and no-op sinks are provided.
//   - [Dispatcher]: buffered async relay, either dropping or blocking when full.
//
// The package never decides which events exist. The engine and the flow
// functions pick event names; this package only buffers and delivers them.
package audit
