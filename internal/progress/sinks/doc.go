// Package sinks contains progress.Sink implementations: structured logging
// via zap and metrics export via Prometheus.
package sinks
