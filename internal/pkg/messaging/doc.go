// Package messaging publishes and consumes broker messages behind a small
// interface. NATS is the only backend; a nil-safe Noop is used when messaging
// is disabled.
package messaging
