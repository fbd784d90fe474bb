// Package server dispatches inbound events to their handlers and relays
// them to the target user's connection when online. Delivery is best-effort
// and online-only: an offline target drops the event silently, and offline
// delivery belongs to the persisted message store consulted on reconnect.
package server

import (
	"encoding/json"
	"log"
	"time"
)

// handleEvent runs on the hub goroutine and is the single entry point for
// all client events. It never mutates the registry; side effects are
// confined to emitting to at most one other connection.
func (h *Hub) handleEvent(client *Client, env Envelope) {
	if client.userID == "" {
		log.Printf("Dropping %s from unidentified connection %s", env.Event, client.id)
		return
	}

	switch env.Event {
	case EventTyping:
		var p TargetPayload
		if !decodePayload(client, env, &p) || p.ReceiverID == "" {
			return
		}
		h.emitTo(p.ReceiverID, EventUserTyping, SenderPayload{SenderID: client.userID})

	case EventStopTyping:
		var p TargetPayload
		if !decodePayload(client, env, &p) || p.ReceiverID == "" {
			return
		}
		h.emitTo(p.ReceiverID, EventUserStoppedTyping, SenderPayload{SenderID: client.userID})

	case EventMessageDelivered:
		h.relayReceipt(client, env, StatusDelivered)

	case EventMessageRead:
		h.relayReceipt(client, env, StatusRead)

	case EventReactionUpdate:
		var p ReactionPayload
		if !decodePayload(client, env, &p) || p.ReceiverID == "" || p.MessageID == "" {
			return
		}
		h.emitTo(p.ReceiverID, EventReactionUpdate, ReactionUpdatePayload{
			MessageID: p.MessageID,
			Reaction:  p.Reaction,
			SenderID:  client.userID,
		})

	case EventMessageDeleted:
		var p DeletePayload
		if !decodePayload(client, env, &p) || p.ReceiverID == "" || p.MessageID == "" {
			return
		}
		h.emitTo(p.ReceiverID, EventMessageDeleted, MessageDeletedPayload{
			MessageID: p.MessageID,
			SenderID:  client.userID,
		})

	case EventSendNotification:
		var p NotificationPayload
		if !decodePayload(client, env, &p) || p.ReceiverID == "" || p.Type == "" {
			return
		}
		h.emitTo(p.ReceiverID, EventGetNotification, NotificationEventPayload{
			Sender:    client.userID,
			Type:      p.Type,
			PostID:    p.PostID,
			CreatedAt: time.Now().UTC(),
		})

	case EventCallUser, EventAnswerCall, EventDeclineCall, EventEndCall, EventICECandidate:
		h.handleCallEvent(client, env)

	default:
		log.Printf("Dropping unknown event %q from user %s", env.Event, client.userID)
	}
}

// relayReceipt forwards a delivery or read receipt to the message's
// original sender. Unlike most relays the target here is the senderId named
// in the payload, not a receiverId.
func (h *Hub) relayReceipt(client *Client, env Envelope, status string) {
	var p ReceiptPayload
	if !decodePayload(client, env, &p) || p.MessageID == "" || p.SenderID == "" {
		return
	}
	h.emitTo(p.SenderID, EventMessageStatus, MessageStatusPayload{
		MessageID: p.MessageID,
		Status:    status,
	})
}

// decodePayload unmarshals an event payload, logging and reporting failure
// so the caller can drop the event.
func decodePayload(client *Client, env Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Printf("Malformed %s payload from user %s: %v", env.Event, client.userID, err)
		return false
	}
	return true
}
