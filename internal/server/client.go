// Package server manages individual WebSocket connections, handling the
// read/write pumps, rate limiting, and lifecycle control for each client.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// Client represents one WebSocket connection. A client may carry a user
// identity supplied at handshake time; connections that never identify are
// served but have no presence entry and cannot send relay events.
type Client struct {
	id             string
	userID         string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a client for the given connection. userID may be empty
// for an unidentified connection.
func NewClient(conn *websocket.Conn, hub *Hub, addr, userID string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		userID:         userID,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the user identity bound at handshake, or "" if the
// connection never identified.
func (c *Client) UserID() string {
	return c.userID
}

// GetSendChan returns the client's outbound channel for reading queued
// messages. This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			log.Printf("Rate limit exceeded for %s (%d events per %s); discarding event", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// processMessage decodes one inbound frame and hands it to the hub run
// loop. Malformed frames are dropped with a warning; they never take down
// the connection.
func (c *Client) processMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Invalid frame from %s: %v", c.addr, err)
		return
	}
	if env.Event == "" {
		log.Printf("Frame without event name from %s; dropping", c.addr)
		return
	}

	select {
	case c.hub.inbound <- InboundEvent{Client: c, Env: env}:
	case <-c.hub.ctx.Done():
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}
			if !ok {
				c.writeCloseMessage()
				return
			}
			if !c.writeMessage(message) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

func (c *Client) writeCloseMessage() {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing close message to %s: %v", c.addr, err)
	}
}

// writeMessage writes one envelope per frame. Envelopes are never batched
// into a shared frame; clients decode each frame as a single JSON document.
func (c *Client) writeMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("Error writing message to %s: %v", c.addr, err)
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
