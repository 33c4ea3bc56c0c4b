// Package ws pushes live bot state to dashboard clients over
// WebSocket: connection status transitions and pairing tokens. The
// stream is push-only; the only inbound message clients send is ping.
package ws
