package proxy

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/cache"
	"github.com/covoit/carpool-sdk/pkg/session"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// The gateway listens on a local address for the user's own front ends.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message types sent on the event stream.
const (
	MessageSession = "session"
	MessageCache   = "cache"
)

// EventMessage is one message on the /events stream. Session fields are set for session messages
// and Kind, Key and Status for cache messages.
type EventMessage struct {
	Type    string           `json:"type"`
	State   string           `json:"state,omitempty"`
	Session *session.Session `json:"session,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	Kind    string           `json:"kind,omitempty"`
	Key     cache.Key        `json:"key,omitempty"`
	Status  string           `json:"status,omitempty"`
}

func sessionMessage(e session.Event) *EventMessage {
	return &EventMessage{
		Type:    MessageSession,
		State:   e.State.String(),
		Session: e.Session,
		Reason:  e.Reason,
	}
}

func cacheMessage(e cache.Event) *EventMessage {
	m := &EventMessage{
		Type: MessageCache,
		Kind: e.Kind.String(),
		Key:  e.Key,
	}
	if e.Kind == cache.EventUpdated {
		m.Status = e.Status.String()
	}
	return m
}

// eventConn wraps the write side of a subscriber's connection. Only the handler goroutine writes.
type eventConn struct {
	ws *websocket.Conn
}

func (c *eventConn) send(m *EventMessage) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(m)
}

func (c *eventConn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleEvents streams session and cache events to a WebSocket client until either side closes.
// The first message always reports the current session state.
func (p *Proxy) handleEvents(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warning("WebSocket upgrade failed: %s", err)
		return
	}
	conn := &eventConn{ws: ws}
	defer ws.Close()

	sessions := p.client.Session.Subscribe()
	defer sessions.Close()
	entries := p.client.Cache.Subscribe()
	defer entries.Close()

	initial := &EventMessage{Type: MessageSession, State: p.client.Session.State().String(), Session: p.client.Current()}
	if err := conn.send(initial); err != nil {
		log.Debug("Event stream closed: %s", err)
		return
	}
	log.Info("Event subscriber connected from %s", req.RemoteAddr)

	// Detect disconnects. Clients are not expected to send anything.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		var m *EventMessage
		select {
		case <-done:
			log.Info("Event subscriber %s disconnected", req.RemoteAddr)
			return
		case e, ok := <-sessions.Recv():
			if !ok {
				return
			}
			m = sessionMessage(e)
		case e, ok := <-entries.Recv():
			if !ok {
				return
			}
			m = cacheMessage(e)
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				log.Debug("Event stream ping failed: %s", err)
				return
			}
			continue
		}
		if err := conn.send(m); err != nil {
			log.Debug("Event stream closed: %s", err)
			return
		}
	}
}
