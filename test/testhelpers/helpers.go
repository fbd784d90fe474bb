// Package testhelpers provides common utilities for testing the Bridgr
// realtime server.
//
// It contains helpers shared across unit and integration tests: dialing
// identified WebSocket connections against a test server, reading and
// filtering event envelopes, and asserting HTTP response properties.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bridgr/realtime/internal/server"
)

// EventWait bounds how long helpers wait for an expected event.
const EventWait = 2 * time.Second

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL converts a test server's base URL into the ws:// URL of the
// relay endpoint for the given user.
func WebSocketURL(baseURL, userID string) string {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http")
	return wsURL + "/ws?userId=" + url.QueryEscape(userID)
}

// DialUser opens an identified WebSocket connection to the test server.
// The connection is closed automatically when the test finishes.
func DialUser(t *testing.T, baseURL, userID string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", baseURL)

	conn, resp, err := websocket.DefaultDialer.Dial(WebSocketURL(baseURL, userID), header)
	if err != nil {
		t.Fatalf("Failed to dial websocket for %q: %v", userID, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// EmitEvent writes one event envelope to the connection.
func EmitEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: payload}); err != nil {
		t.Fatalf("Failed to write %s event: %v", event, err)
	}
}

// ReadEnvelope reads the next frame from the connection and decodes it.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(EventWait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var env server.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to decode envelope %q: %v", raw, err)
	}
	return env
}

// WaitForEvent reads frames until one with the given event name arrives,
// discarding interleaved broadcasts (presence updates are pushed on every
// connect and disconnect). Fails the test if the event does not arrive
// within EventWait.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(EventWait)
	for time.Now().Before(deadline) {
		env := ReadEnvelope(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("Timed out waiting for %q event", event)
	return server.Envelope{}
}

// WaitForOnlineUsers reads presence broadcasts until the online set equals
// want (order irrelevant). Fails the test on timeout.
func WaitForOnlineUsers(t *testing.T, conn *websocket.Conn, want []string) {
	t.Helper()

	wantSorted := append([]string(nil), want...)
	sort.Strings(wantSorted)

	deadline := time.Now().Add(EventWait)
	var last []string
	for time.Now().Before(deadline) {
		env := WaitForEvent(t, conn, server.EventOnlineUsers)

		var got []string
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatalf("Failed to decode online users: %v", err)
		}
		sort.Strings(got)

		if equalStrings(got, wantSorted) {
			return
		}
		last = got
	}
	t.Fatalf("Online users never reached %v; last seen %v", wantSorted, last)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, requestURL string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, requestURL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	return resp
}
