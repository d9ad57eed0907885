package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sandeepkv93/companiond/internal/events"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// EventMessage is the wire form of a bus event on the stream endpoint.
type EventMessage struct {
	Kind         string    `json:"kind"`
	At           time.Time `json:"at"`
	TimerID      string    `json:"timer_id,omitempty"`
	AutomationID string    `json:"automation_id,omitempty"`
	CalendarID   string    `json:"calendar_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

func eventMessage(ev events.Event) EventMessage {
	return EventMessage{
		Kind:         string(ev.Kind),
		At:           ev.At,
		TimerID:      ev.TimerID,
		AutomationID: ev.AutomationID,
		CalendarID:   ev.CalendarID,
		Detail:       ev.Detail,
	}
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      allowedOrigin,
}

// allowedOrigin accepts clients that send no Origin, same-origin pages and
// pages served from loopback. Other sites must not read the stream.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return isLoopback(u.Hostname())
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// streamEvents upgrades to a websocket and forwards every bus event as a
// JSON text frame until the client goes away or the bus closes.
func streamEvents(bus *events.Bus, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("event stream upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		evs, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		// Reads only detect the close; clients have nothing to say.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case ev, ok := <-evs:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
						time.Now().Add(streamWriteWait))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(eventMessage(ev)); err != nil {
					logger.Debug("event stream write failed", "err", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	}
}
