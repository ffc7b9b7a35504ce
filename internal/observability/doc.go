// Package observability provides structured logging and Prometheus
// metrics for the proxy.
package observability
