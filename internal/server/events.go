// Package server defines the wire-level event envelope and the payload types
// exchanged between clients and the relay.
package server

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names accepted from clients.
const (
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventMessageDelivered = "messageDelivered"
	EventMessageRead      = "messageRead"
	EventReactionUpdate   = "reactionUpdate"
	EventMessageDeleted   = "messageDeleted"
	EventSendNotification = "sendNotification"
	EventCallUser         = "callUser"
	EventAnswerCall       = "answerCall"
	EventDeclineCall      = "declineCall"
	EventEndCall          = "endCall"
	EventICECandidate     = "iceCandidate"
)

// Event names emitted to clients. EventReactionUpdate, EventMessageDeleted,
// and EventICECandidate keep the same name in both directions.
const (
	EventOnlineUsers       = "getOnlineUsers"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventMessageStatus     = "messageStatus"
	EventGetNotification   = "getNotification"
	EventIncomingCall      = "incomingCall"
	EventCallAccepted      = "callAccepted"
	EventCallDeclined      = "callDeclined"
	EventCallEnded         = "callEnded"
)

// Message delivery statuses carried by EventMessageStatus.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Call types accepted on a call offer.
const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"
)

// Envelope is the framing for every message on the wire: an event name plus
// an event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// marshalEnvelope frames an outbound event ready for the transport.
func marshalEnvelope(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}

// TargetPayload is the minimal inbound shape for events that only name a
// receiving user (typing, stopTyping, declineCall, endCall).
type TargetPayload struct {
	ReceiverID string `json:"receiverId"`
}

// ReceiptPayload acknowledges a message back to its original sender.
type ReceiptPayload struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// ReactionPayload updates a reaction on a message in a conversation.
type ReactionPayload struct {
	ReceiverID string `json:"receiverId"`
	MessageID  string `json:"messageId"`
	Reaction   string `json:"reaction"`
}

// DeletePayload tells the other participant a message was removed.
type DeletePayload struct {
	ReceiverID string `json:"receiverId"`
	MessageID  string `json:"messageId"`
}

// NotificationPayload pushes an application notification to another user.
type NotificationPayload struct {
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type"`
	PostID     string `json:"postId,omitempty"`
}

// CallOfferPayload carries a WebRTC offer. SignalData is opaque to the
// relay; only the two peers interpret it.
type CallOfferPayload struct {
	ReceiverID string          `json:"receiverId"`
	SignalData json.RawMessage `json:"signalData"`
	CallType   string          `json:"callType"`
}

// CallAnswerPayload carries a WebRTC answer back to the caller.
type CallAnswerPayload struct {
	ReceiverID string          `json:"receiverId"`
	Answer     json.RawMessage `json:"answer"`
}

// CandidatePayload carries one trickled ICE candidate.
type CandidatePayload struct {
	ReceiverID string          `json:"receiverId"`
	Candidate  json.RawMessage `json:"candidate"`
}

// SenderPayload attributes a relayed event to its originating user.
type SenderPayload struct {
	SenderID string `json:"senderId"`
}

// MessageStatusPayload reports a delivery or read receipt.
type MessageStatusPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// ReactionUpdatePayload is the outbound form of a reaction change.
type ReactionUpdatePayload struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	SenderID  string `json:"senderId"`
}

// MessageDeletedPayload is the outbound form of a message removal.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// NotificationEventPayload is delivered to the notification target with a
// server-assigned timestamp.
type NotificationEventPayload struct {
	Sender    string    `json:"sender"`
	Type      string    `json:"type"`
	PostID    string    `json:"postId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IncomingCallPayload rings the callee.
type IncomingCallPayload struct {
	CallerID       string          `json:"callerId"`
	CallerSocketID string          `json:"callerSocketId"`
	SignalData     json.RawMessage `json:"signalData"`
	CallType       string          `json:"callType"`
}

// CallAcceptedPayload returns the callee's answer to the caller.
type CallAcceptedPayload struct {
	Answer json.RawMessage `json:"answer"`
}

// CandidateEventPayload is the outbound form of an ICE candidate.
type CandidateEventPayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

func validCallType(callType string) bool {
	return callType == CallTypeAudio || callType == CallTypeVideo
}
