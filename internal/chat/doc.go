// Package chat defines the chat-session driver collaborator surface.
//
// The driver is the opaque browser-automation client that actually
// speaks to the messaging network. This backend consumes it through
// the Driver interface: start/stop, an event stream (pairing token,
// ready, disconnected, inbound commands), a recent-message fetch, and
// a reply operation. The production implementation talks to a sidecar
// process over HTTP; tests substitute an in-memory fake.
package chat
