// Package monitoring provides Prometheus metrics for the bot backend:
// queue admission/processing, recovery attempts, session blob
// transfer, remote store usage, and dashboard HTTP traffic.
package monitoring
