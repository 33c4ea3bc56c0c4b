package recovery

import "time"

// State is the recovery lifecycle position.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateAwaitingPairing
	StateAuthenticating
	StateReady
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is an input to the state machine.
type Event int

const (
	// EventInitialize requests an initialization attempt.
	EventInitialize Event = iota
	// EventPairingRequired means the driver needs a credential
	// exchange (a pairing token was emitted).
	EventPairingRequired
	// EventAuthenticated means credentials were accepted.
	EventAuthenticated
	// EventReady means the session is usable.
	EventReady
	// EventDisconnected means the session dropped.
	EventDisconnected
	// EventFatal is an unrecoverable driver error.
	EventFatal
)

// Snapshot is the process-lifetime recovery bookkeeping. Only the
// Controller mutates it.
type Snapshot struct {
	AttemptCount      int
	MaxAttempts       int
	LastSuccessAt     *time.Time
	ForceFreshPairing bool
}

// Actions are the side effects a transition demands. The transition
// function itself performs none of them.
type Actions struct {
	// StartInit begins an initialization attempt (restore-or-pair).
	StartInit bool
	// ResetAttempts zeroes the attempt counter and records success.
	ResetAttempts bool
	// Backup packs and saves the working directory asynchronously.
	Backup bool
	// IncrementAttempt bumps the attempt counter.
	IncrementAttempt bool
	// ClearRemote deletes the persisted remote session.
	ClearRemote bool
	// ForceFresh marks the next initialization to skip restoration.
	ForceFresh bool
	// ScheduleReinit re-enters initialization after the backoff.
	ScheduleReinit bool
}

// Transition is the pure state function. Given the current state, an
// event, and the recovery snapshot it returns the next state and the
// actions to execute.
//
// The disconnect path is bounded: once the attempt counter would reach
// MaxAttempts, restoration is abandoned for good: the remote session
// is cleared and the next cycle pairs fresh. The loop therefore always
// terminates in either ready or a deterministic fresh-pairing path.
func Transition(state State, ev Event, snap Snapshot) (State, Actions) {
	switch ev {
	case EventInitialize:
		if state == StateInitializing {
			// One initialization in flight at a time.
			return state, Actions{}
		}
		return StateInitializing, Actions{StartInit: true}

	case EventPairingRequired:
		return StateAwaitingPairing, Actions{}

	case EventAuthenticated:
		return StateAuthenticating, Actions{}

	case EventReady:
		return StateReady, Actions{ResetAttempts: true, Backup: true}

	case EventDisconnected:
		actions := Actions{IncrementAttempt: true, ScheduleReinit: true}
		if snap.AttemptCount+1 >= snap.MaxAttempts {
			actions.ClearRemote = true
			actions.ForceFresh = true
		}
		return StateIdle, actions

	case EventFatal:
		return StateFailed, Actions{ScheduleReinit: true}

	default:
		return state, Actions{}
	}
}
