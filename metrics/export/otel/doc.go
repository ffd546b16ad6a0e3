// Package otel exposes goAccount engine metrics as OpenTelemetry observable
// instruments.
//
// Counters map to Int64ObservableCounter. The validate latency histogram is
// published as one cumulative gauge per bucket plus a count gauge. Callers own
// the MeterProvider and pass a Meter to New.
package otel
