// Package server exposes HTTP handlers, including the WebSocket upgrade
// that binds a user identity to the connection, health checks, and the
// built-in test page.
package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// ErrInvalidToken is returned when a handshake token fails verification.
var ErrInvalidToken = errors.New("invalid token")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the connection and registers it with the hub.
// Identity comes from the handshake: a userId query parameter, or a signed
// token when JWT_SECRET is configured. A connection that fails to identify
// is still served — it receives presence broadcasts but cannot relay.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	userID, err := identityFromRequest(r)
	if err != nil {
		log.Printf("Rejecting handshake identity from %s: %v", r.RemoteAddr, err)
		userID = ""
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, GetHub(), r.RemoteAddr, userID)
	client.hub.register <- client
}

// identityFromRequest resolves the user identity supplied at handshake
// time. Token issuance is external; the relay only verifies.
func identityFromRequest(r *http.Request) (string, error) {
	cfg := currentConfig()
	if cfg.JWTSecret != "" {
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			return userIDFromToken(tokenString, cfg.JWTSecret)
		}
	}
	return r.URL.Query().Get("userId"), nil
}

func userIDFromToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// HealthHandler provides a simple health check endpoint that returns server
// status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Bridgr realtime server is running!")
}

// TestPageHandler serves an HTML page for exercising the relay by hand:
// connect with a user id, watch presence updates, and send typing or call
// events to another user.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Bridgr Realtime Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; }
        input[type="text"] { padding: 5px; margin-right: 5px; }
        button { padding: 5px 12px; }
    </style>
</head>
<body>
    <h1>Bridgr Realtime Test</h1>
    <div>
        <input type="text" id="userId" placeholder="your user id">
        <button onclick="connect()">Connect</button>
    </div>
    <div>
        <input type="text" id="peerId" placeholder="peer user id">
        <button onclick="send('typing')">Typing</button>
        <button onclick="send('stopTyping')">Stop typing</button>
        <button onclick="sendOffer()">Call (fake offer)</button>
        <button onclick="send('endCall')">End call</button>
    </div>
    <div id="log"></div>

    <script>
        let ws = null;
        const log = (line) => {
            const el = document.createElement('div');
            el.textContent = line;
            document.getElementById('log').appendChild(el);
        };

        function connect() {
            const userId = document.getElementById('userId').value.trim();
            ws = new WebSocket('ws://' + location.host + '/ws?userId=' + encodeURIComponent(userId));
            ws.onopen = () => log('connected as ' + userId);
            ws.onmessage = (e) => log('<- ' + e.data);
            ws.onclose = () => log('disconnected');
        }

        function emit(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) { log('not connected'); return; }
            const frame = JSON.stringify({event, data});
            ws.send(frame);
            log('-> ' + frame);
        }

        function send(event) {
            emit(event, {receiverId: document.getElementById('peerId').value.trim()});
        }

        function sendOffer() {
            emit('callUser', {
                receiverId: document.getElementById('peerId').value.trim(),
                signalData: {type: 'offer', sdp: 'v=0 test'},
                callType: 'video'
            });
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
