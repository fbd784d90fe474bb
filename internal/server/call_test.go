package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCallTable(ringTimeout time.Duration) (*callTable, chan callKey) {
	expired := make(chan callKey, 16)
	return newCallTable(ringTimeout, expired, nil), expired
}

func TestCallOfferAndAnswer(t *testing.T) {
	calls, _ := newTestCallTable(0)

	require.NoError(t, calls.offer("alice", "bob"))
	require.NoError(t, calls.answer("bob", "alice"))
}

func TestCallSecondOfferRejected(t *testing.T) {
	calls, _ := newTestCallTable(0)

	require.NoError(t, calls.offer("alice", "bob"))

	assert.Error(t, calls.offer("alice", "bob"), "second offer while ringing")
	assert.Error(t, calls.offer("bob", "alice"), "reverse offer for the same pair")

	require.NoError(t, calls.answer("bob", "alice"))
	assert.Error(t, calls.offer("alice", "bob"), "offer while connected")
}

func TestCallAnswerWithoutOfferRejected(t *testing.T) {
	calls, _ := newTestCallTable(0)

	assert.Error(t, calls.answer("bob", "alice"))
}

func TestCallAnswerByWrongPartyRejected(t *testing.T) {
	calls, _ := newTestCallTable(0)

	require.NoError(t, calls.offer("alice", "bob"))
	assert.Error(t, calls.answer("alice", "bob"), "the caller cannot answer their own call")
}

func TestCallAnswerAfterConnectedRejected(t *testing.T) {
	calls, _ := newTestCallTable(0)

	require.NoError(t, calls.offer("alice", "bob"))
	require.NoError(t, calls.answer("bob", "alice"))
	assert.Error(t, calls.answer("bob", "alice"))
}

func TestCallEnd(t *testing.T) {
	calls, _ := newTestCallTable(0)

	assert.False(t, calls.end("alice", "bob"), "ending a nonexistent call reports false")

	require.NoError(t, calls.offer("alice", "bob"))
	assert.True(t, calls.end("bob", "alice"), "either participant may end, in any state")
	assert.False(t, calls.end("alice", "bob"))

	// After an end, the pair may call again.
	require.NoError(t, calls.offer("bob", "alice"))
}

func TestCallRingTimerFires(t *testing.T) {
	calls, expired := newTestCallTable(20 * time.Millisecond)

	require.NoError(t, calls.offer("alice", "bob"))

	select {
	case key := <-expired:
		caller, ok := calls.expire(key)
		require.True(t, ok)
		assert.Equal(t, "alice", caller)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("ring timer never fired")
	}

	_, ok := calls.expire(keyFor("alice", "bob"))
	assert.False(t, ok, "expiring twice is a no-op")
}

// A ring timer that fires after the drain loop has stopped gives up
// instead of blocking on the expiry channel forever.
func TestCallRingTimerGivesUpAfterShutdown(t *testing.T) {
	expired := make(chan callKey)
	done := make(chan struct{})
	calls := newCallTable(5*time.Millisecond, expired, done)

	close(done)
	require.NoError(t, calls.offer("alice", "bob"))

	select {
	case key := <-expired:
		t.Fatalf("Expiry %v delivered after shutdown", key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallExpireIgnoresAnsweredCall(t *testing.T) {
	calls, expired := newTestCallTable(10 * time.Millisecond)

	require.NoError(t, calls.offer("alice", "bob"))
	require.NoError(t, calls.answer("bob", "alice"))

	// The timer was stopped on answer, but even a late fire must not tear
	// down a connected call.
	select {
	case key := <-expired:
		_, ok := calls.expire(key)
		assert.False(t, ok)
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, calls.end("alice", "bob"))
}

func TestCallEndAllForDisconnectedUser(t *testing.T) {
	calls, _ := newTestCallTable(0)

	require.NoError(t, calls.offer("alice", "bob"))
	require.NoError(t, calls.answer("bob", "alice"))
	require.NoError(t, calls.offer("alice", "carol"))

	peers := calls.endAllFor("alice")
	assert.ElementsMatch(t, []string{"bob", "carol"}, peers)

	assert.Empty(t, calls.endAllFor("alice"))
	assert.False(t, calls.end("alice", "bob"))
}

func TestCallKeyIsUnordered(t *testing.T) {
	assert.Equal(t, keyFor("alice", "bob"), keyFor("bob", "alice"))
}
