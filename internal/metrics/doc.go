// Package metrics exports run progress to Prometheus: outcomes by reason,
// fetch duration, and proxy pool usage. It is served on --metrics-addr.
package metrics
