// Package queue serializes inbound group commands into single-file
// execution against the generation collaborator.
//
// Admission is gated twice before a command enters the queue: a depth
// bound (queue full) and a minimum interval since the last admitted
// command (rate limited). Both rejections are deterministic control
// decisions surfaced to the requesting chat, not faults.
//
// One worker drains the queue in strict FIFO order with at most one
// generation call in flight system-wide. Each item is attempted
// exactly once; failures are reported to the origin and the item is
// dropped, never re-enqueued.
package queue
