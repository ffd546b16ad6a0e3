// Package security summarizes an engine configuration into a read-only
// posture report. It performs no I/O.
package security
