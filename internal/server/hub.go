// Package server coordinates connection registration, event relay, and
// presence broadcast for the Bridgr realtime service via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// InboundEvent pairs a decoded envelope with the connection it arrived on.
type InboundEvent struct {
	Client *Client
	Env    Envelope
}

// Hub owns the connection registry and the call-session table. All registry
// mutations, relays, and presence broadcasts run on the hub's single run
// loop, so handlers observe every mutation completed before them.
type Hub struct {
	registry Registry
	clients  map[string]*Client
	calls    *callTable
	mirror   *PresenceMirror

	inbound      chan InboundEvent
	register     chan *Client
	unregister   chan *Client
	callTimeouts chan callKey

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub around the given registry. The ring timeout for call
// sessions is taken from the active configuration.
func NewHub(registry Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	timeouts := make(chan callKey, 16)

	return &Hub{
		registry:     registry,
		clients:      make(map[string]*Client),
		calls:        newCallTable(currentConfig().CallRingTimeout, timeouts, ctx.Done()),
		inbound:      make(chan InboundEvent, 64),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		callTimeouts: timeouts,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// SetMirror attaches a Redis presence mirror. Must be called before Run.
func (h *Hub) SetMirror(mirror *PresenceMirror) {
	h.mirror = mirror
}

// GetRegisterChan returns the channel used for registering new connections.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering connections.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetInboundChan returns the channel that feeds decoded client events into
// the run loop.
func (h *Hub) GetInboundChan() chan<- InboundEvent {
	return h.inbound
}

// Run starts the hub's main event loop. This method should be called in a
// separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	refresh := time.NewTicker(presenceTTL / 2)
	defer refresh.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case event := <-h.inbound:
			h.handleEvent(event.Client, event.Env)

		case key := <-h.callTimeouts:
			h.handleRingTimeout(key)

		case <-refresh.C:
			h.refreshMirror()
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	total := len(h.clients)
	h.mutex.Unlock()

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	if client.userID == "" {
		log.Printf("Unidentified connection %s from %s. Total clients: %d", client.id, client.addr, total)
	} else {
		previous := h.registry.Register(client.userID, client.id)
		if previous != "" && previous != client.id {
			h.closeReplaced(previous)
		}
		if h.mirror != nil {
			go h.mirror.SetOnline(h.ctx, client.userID, client.id)
		}
		log.Printf("User %s identified on connection %s from %s. Total clients: %d", client.userID, client.id, client.addr, total)
	}

	h.broadcastOnlineUsers()
}

// closeReplaced evicts the previous connection of a user who reconnected.
// Its eventual disconnect cannot remove the new registry entry because
// Unregister compares connection identifiers.
func (h *Hub) closeReplaced(connID string) {
	h.mutex.Lock()
	old, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		old.closed = true
	}
	h.mutex.Unlock()

	if !ok {
		return
	}
	close(old.send)
	log.Printf("Connection %s replaced by a newer session for user %s", connID, old.userID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	_, present := h.clients[client.id]
	if present {
		delete(h.clients, client.id)
		client.closed = true
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if present {
		close(client.send)
		log.Printf("Connection %s from %s closed. Total clients: %d", client.id, client.addr, total)
	}

	if client.userID == "" {
		return
	}
	if !h.registry.Unregister(client.userID, client.id) {
		// A newer session for this user already owns the registry entry.
		return
	}

	if h.mirror != nil {
		go h.mirror.SetOffline(h.ctx, client.userID)
	}

	for _, peer := range h.calls.endAllFor(client.userID) {
		h.emitTo(peer, EventCallEnded, struct{}{})
		log.Printf("Notified %s that the call ended after %s disconnected", peer, client.userID)
	}

	h.broadcastOnlineUsers()
}

// broadcastOnlineUsers pushes the current online-user set to every open
// connection, identified or not.
func (h *Hub) broadcastOnlineUsers() {
	users := h.registry.OnlineUsers()
	raw, err := marshalEnvelope(EventOnlineUsers, users)
	if err != nil {
		log.Printf("Error encoding online-users broadcast: %v", err)
		return
	}

	var stale []*Client
	for _, client := range h.clientSnapshot() {
		if !h.safeSend(client, raw) {
			stale = append(stale, client)
		}
	}
	h.removeFailedClients(stale)
}

// emitTo delivers one event to the given user's connection if they are
// online. An offline target is an expected outcome and the event is
// silently dropped.
func (h *Hub) emitTo(userID, event string, data any) bool {
	connID, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}

	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()
	if !ok {
		return false
	}

	raw, err := marshalEnvelope(event, data)
	if err != nil {
		log.Printf("Error encoding %s for user %s: %v", event, userID, err)
		return false
	}
	return h.safeSend(client, raw)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// underneath the send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients drops connections whose send buffers are full; the
// slow consumer is disconnected rather than allowed to stall the hub.
func (h *Hub) removeFailedClients(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clients {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Connection %s from %s removed due to full send buffer", client.id, client.addr)
		}
	}
	h.mutex.Unlock()

	// Close the channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

func (h *Hub) handleRingTimeout(key callKey) {
	caller, ok := h.calls.expire(key)
	if !ok {
		return
	}
	h.emitTo(caller, EventCallDeclined, struct{}{})
	log.Printf("Ringing call from %s went unanswered and timed out", caller)
}

func (h *Hub) refreshMirror() {
	if h.mirror == nil {
		return
	}
	users := h.registry.OnlineUsers()
	if len(users) == 0 {
		return
	}
	go h.mirror.Refresh(h.ctx, users)
}

func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", client.addr, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops the run loop and waits for all connection goroutines to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

var (
	hubOnce sync.Once
	hub     *Hub
)

// GetHub returns the process-wide hub instance used by the HTTP handlers.
// It is built on first use so it picks up the configuration applied by
// SetConfig at startup.
func GetHub() *Hub {
	hubOnce.Do(func() {
		hub = NewHub(NewMemoryRegistry())
	})
	return hub
}
