// Package recovery governs pairing and restore cycles for the chat
// session.
//
// The state machine is a pure function in state.go: every transition
// maps (state, event, snapshot) to (next state, actions) with no I/O,
// so retry bounds and the forced-fresh-pairing path are testable
// without a driver. The Controller executes the actions: restoring
// blobs through the session manager, starting the driver, backing up
// after ready, and enforcing the bounded retry loop. The Watchdog
// keeps the remote store under quota so the next backup always has
// room.
package recovery
