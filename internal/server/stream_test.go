package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEventStream(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/stream"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()
	if res.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected handshake status %d", res.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.svc.Bus().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed to the bus")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res2, data := srv.do(t, http.MethodPost, "/timers", map[string]any{
		"name": "tea", "type": "countdown", "duration_seconds": 60,
	})
	if res2.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res2.StatusCode, data)
	}
	created := decode[TimerResponse](t, data)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Kind != "timer.created" || msg.TimerID != created.ID || msg.Detail != "tea" {
		t.Fatalf("unexpected event: %+v", msg)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline = time.Now().Add(2 * time.Second)
	for srv.svc.Bus().Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream kept its subscription after the client closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventStreamRejectsForeignOrigins(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/stream"

	for _, origin := range []string{"https://evil.example", "http://127.0.0.1.evil.example", "null"} {
		conn, res, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {origin}})
		if err == nil {
			conn.Close()
			t.Fatalf("origin %q: expected the handshake to be refused", origin)
		}
		if res == nil || res.StatusCode != http.StatusForbidden {
			t.Fatalf("origin %q: expected 403, got %v (%v)", origin, res, err)
		}
	}

	for _, origin := range []string{"http://localhost:5173", "http://127.0.0.1:3000", "http://[::1]:8080"} {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {origin}})
		if err != nil {
			t.Fatalf("origin %q: expected the handshake to succeed: %v", origin, err)
		}
		conn.Close()
	}
}
