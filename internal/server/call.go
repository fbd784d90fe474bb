// Package server models active call sessions so the signaling relay can
// reject out-of-order handshake events and time out unanswered rings.
package server

import (
	"fmt"
	"time"
)

type callState int

const (
	callRinging callState = iota
	callConnected
)

// callKey identifies a call by its unordered pair of participants. At most
// one session exists per pair.
type callKey struct {
	a, b string
}

func keyFor(u1, u2 string) callKey {
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return callKey{a: u1, b: u2}
}

type callSession struct {
	caller string
	callee string
	state  callState
	timer  *time.Timer
}

func (s *callSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *callSession) peerOf(user string) string {
	if user == s.caller {
		return s.callee
	}
	return s.caller
}

// callTable tracks call sessions between user pairs. It is owned by the hub
// run loop and must only be used from that goroutine; ring expirations are
// delivered back to the loop on the expired channel.
type callTable struct {
	sessions    map[callKey]*callSession
	ringTimeout time.Duration
	expired     chan<- callKey
	done        <-chan struct{}
}

func newCallTable(ringTimeout time.Duration, expired chan<- callKey, done <-chan struct{}) *callTable {
	return &callTable{
		sessions:    make(map[callKey]*callSession),
		ringTimeout: ringTimeout,
		expired:     expired,
		done:        done,
	}
}

// offer opens a Ringing session from caller to callee. A second offer while
// any session exists between the pair is rejected.
func (t *callTable) offer(caller, callee string) error {
	key := keyFor(caller, callee)
	if _, exists := t.sessions[key]; exists {
		return fmt.Errorf("call between %s and %s already in progress", caller, callee)
	}

	session := &callSession{caller: caller, callee: callee, state: callRinging}
	if t.ringTimeout > 0 {
		session.timer = time.AfterFunc(t.ringTimeout, func() {
			// The loop draining expired may already have exited; a timer
			// firing during shutdown must not strand its goroutine.
			select {
			case t.expired <- key:
			case <-t.done:
			}
		})
	}
	t.sessions[key] = session
	return nil
}

// answer moves a Ringing session to Connected. Only the callee of that
// session may answer.
func (t *callTable) answer(callee, caller string) error {
	key := keyFor(caller, callee)
	session, ok := t.sessions[key]
	if !ok || session.state != callRinging {
		return fmt.Errorf("no ringing call between %s and %s", caller, callee)
	}
	if session.callee != callee {
		return fmt.Errorf("user %s is not the callee of this call", callee)
	}

	session.stopTimer()
	session.state = callConnected
	return nil
}

// end tears down the session between two users in any state, reporting
// whether one existed. Both decline and hang-up resolve here.
func (t *callTable) end(u1, u2 string) bool {
	key := keyFor(u1, u2)
	session, ok := t.sessions[key]
	if !ok {
		return false
	}

	session.stopTimer()
	delete(t.sessions, key)
	return true
}

// expire removes a session whose ring timer fired, returning the caller to
// notify. A session that was answered or ended in the meantime is left
// alone.
func (t *callTable) expire(key callKey) (string, bool) {
	session, ok := t.sessions[key]
	if !ok || session.state != callRinging {
		return "", false
	}

	session.stopTimer()
	delete(t.sessions, key)
	return session.caller, true
}

// endAllFor tears down every session involving user and returns the peers
// that should be told the call ended. Used when a participant disconnects
// without an explicit endCall.
func (t *callTable) endAllFor(user string) []string {
	var peers []string
	for key, session := range t.sessions {
		if session.caller != user && session.callee != user {
			continue
		}
		session.stopTimer()
		delete(t.sessions, key)
		peers = append(peers, session.peerOf(user))
	}
	return peers
}
