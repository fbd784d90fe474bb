// Package server relays the WebRTC handshake between two peers. The relay
// never inspects session descriptions or ICE candidates; codec and ICE
// negotiation live entirely in the peers' WebRTC stacks.
package server

import "log"

// handleCallEvent validates call signaling against the call-session table
// before relaying. Out-of-order events (a second offer while ringing, an
// answer with no matching ring) are dropped with a warning and the caller
// is not notified.
func (h *Hub) handleCallEvent(client *Client, env Envelope) {
	switch env.Event {
	case EventCallUser:
		var p CallOfferPayload
		if !decodePayload(client, env, &p) {
			return
		}
		if p.ReceiverID == "" || len(p.SignalData) == 0 || !validCallType(p.CallType) {
			log.Printf("Malformed %s from user %s; dropping", env.Event, client.userID)
			return
		}
		if _, online := h.registry.Lookup(p.ReceiverID); !online {
			log.Printf("User %s called offline user %s; dropping offer", client.userID, p.ReceiverID)
			return
		}
		if err := h.calls.offer(client.userID, p.ReceiverID); err != nil {
			log.Printf("Rejected offer from %s: %v", client.userID, err)
			return
		}
		delivered := h.emitTo(p.ReceiverID, EventIncomingCall, IncomingCallPayload{
			CallerID:       client.userID,
			CallerSocketID: client.id,
			SignalData:     p.SignalData,
			CallType:       p.CallType,
		})
		if !delivered {
			// The receiver's connection vanished between lookup and send.
			h.calls.end(client.userID, p.ReceiverID)
		}

	case EventAnswerCall:
		var p CallAnswerPayload
		if !decodePayload(client, env, &p) {
			return
		}
		if p.ReceiverID == "" || len(p.Answer) == 0 {
			log.Printf("Malformed %s from user %s; dropping", env.Event, client.userID)
			return
		}
		if err := h.calls.answer(client.userID, p.ReceiverID); err != nil {
			log.Printf("Rejected answer from %s: %v", client.userID, err)
			return
		}
		h.emitTo(p.ReceiverID, EventCallAccepted, CallAcceptedPayload{Answer: p.Answer})

	case EventDeclineCall:
		h.teardownCall(client, env, EventCallDeclined)

	case EventEndCall:
		h.teardownCall(client, env, EventCallEnded)

	case EventICECandidate:
		// Candidates are forwarded verbatim in any call state; trickle ICE
		// may start before the answer arrives and must not be buffered or
		// reordered.
		var p CandidatePayload
		if !decodePayload(client, env, &p) {
			return
		}
		if p.ReceiverID == "" || len(p.Candidate) == 0 {
			log.Printf("Malformed %s from user %s; dropping", env.Event, client.userID)
			return
		}
		h.emitTo(p.ReceiverID, EventICECandidate, CandidateEventPayload{Candidate: p.Candidate})
	}
}

// teardownCall resolves declineCall and endCall: both remove the session
// and notify the peer, differing only in the event name delivered.
func (h *Hub) teardownCall(client *Client, env Envelope, peerEvent string) {
	var p TargetPayload
	if !decodePayload(client, env, &p) || p.ReceiverID == "" {
		return
	}
	if !h.calls.end(client.userID, p.ReceiverID) {
		log.Printf("Ignoring %s from %s: no call with %s", env.Event, client.userID, p.ReceiverID)
		return
	}
	h.emitTo(p.ReceiverID, peerEvent, struct{}{})
}
