// Package prometheus renders goAccount engine metrics in the Prometheus text
// exposition format. Mount Exporter.Handler on a metrics route; nothing is
// registered globally.
package prometheus
