package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/bridgr/realtime/internal/server"
	"github.com/bridgr/realtime/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	ts := testhelpers.CreateTestServer(server.SetupRoutes())
	defer ts.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/")
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if !strings.Contains(string(body), "running") {
		t.Errorf("Unexpected health body: %q", body)
	}
}

func TestTestPageServed(t *testing.T) {
	ts := testhelpers.CreateTestServer(server.SetupRoutes())
	defer ts.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/test")
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	ts := testhelpers.CreateTestServer(server.SetupRoutes())
	defer ts.Close()

	resp := testhelpers.MakeRequest(t, http.MethodPost, ts.URL+"/ws")
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	server.SetConfig(&server.Config{AllowedOrigins: []string{"http://allowed.example.com"}})
	t.Cleanup(func() { server.SetConfig(testConfig()) })

	ts := testhelpers.CreateTestServer(server.SetupRoutes())
	defer ts.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")

	conn, resp, err := websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts.URL, "mallory"), header)
	if err == nil {
		conn.Close()
		t.Fatal("Expected handshake to fail for disallowed origin")
	}
	if resp != nil {
		defer resp.Body.Close()
		testhelpers.AssertStatusCode(t, resp, http.StatusForbidden)
	}
}
