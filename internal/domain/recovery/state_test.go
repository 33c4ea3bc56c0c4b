package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionInitialize(t *testing.T) {
	next, acts := Transition(StateIdle, EventInitialize, Snapshot{MaxAttempts: 3})
	assert.Equal(t, StateInitializing, next)
	assert.True(t, acts.StartInit)
}

func TestTransitionInitializeWhileInitializing(t *testing.T) {
	next, acts := Transition(StateInitializing, EventInitialize, Snapshot{MaxAttempts: 3})
	assert.Equal(t, StateInitializing, next)
	assert.Equal(t, Actions{}, acts)
}

func TestTransitionHappyPath(t *testing.T) {
	snap := Snapshot{MaxAttempts: 3}

	state, _ := Transition(StateIdle, EventInitialize, snap)
	state, _ = Transition(state, EventPairingRequired, snap)
	assert.Equal(t, StateAwaitingPairing, state)

	state, _ = Transition(state, EventAuthenticated, snap)
	assert.Equal(t, StateAuthenticating, state)

	state, acts := Transition(state, EventReady, snap)
	assert.Equal(t, StateReady, state)
	assert.True(t, acts.ResetAttempts)
	assert.True(t, acts.Backup)
}

func TestTransitionDisconnectSchedulesRetry(t *testing.T) {
	snap := Snapshot{AttemptCount: 0, MaxAttempts: 3}

	next, acts := Transition(StateReady, EventDisconnected, snap)
	assert.Equal(t, StateIdle, next)
	assert.True(t, acts.IncrementAttempt)
	assert.True(t, acts.ScheduleReinit)
	assert.False(t, acts.ClearRemote)
	assert.False(t, acts.ForceFresh)
}

func TestTransitionDisconnectExhaustionForcesFresh(t *testing.T) {
	// The third disconnect against maxAttempts=3 abandons restoration.
	snap := Snapshot{AttemptCount: 2, MaxAttempts: 3}

	next, acts := Transition(StateReady, EventDisconnected, snap)
	assert.Equal(t, StateIdle, next)
	assert.True(t, acts.ClearRemote)
	assert.True(t, acts.ForceFresh)
	assert.True(t, acts.ScheduleReinit)
}

func TestTransitionRetryLoopIsBounded(t *testing.T) {
	snap := Snapshot{MaxAttempts: 3}
	state := StateIdle

	forced := 0
	for i := 0; i < 10; i++ {
		var acts Actions
		state, acts = Transition(state, EventInitialize, snap)
		state, acts = Transition(state, EventDisconnected, snap)
		if acts.IncrementAttempt {
			snap.AttemptCount++
		}
		if acts.ForceFresh {
			snap.ForceFreshPairing = true
			forced++
		}
	}

	// Once attempts reach the bound every further disconnect keeps the
	// fresh-pairing flag on; the loop never restores a broken blob
	// forever.
	assert.True(t, snap.ForceFreshPairing)
	assert.GreaterOrEqual(t, forced, 1)
}

func TestTransitionFatalSchedulesReinit(t *testing.T) {
	next, acts := Transition(StateInitializing, EventFatal, Snapshot{MaxAttempts: 3})
	assert.Equal(t, StateFailed, next)
	assert.True(t, acts.ScheduleReinit)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "awaiting_pairing", StateAwaitingPairing.String())
	assert.Equal(t, "unknown", State(99).String())
}
