/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/rustam/internal/room"
	"github.com/Seednode/rustam/internal/view"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsMessage is pushed to a viewer whenever their room or role changes.
// Type is "room" or "role". Gone is set once the room has been deleted.
type wsMessage struct {
	Type     string        `json:"type"`
	Room     *room.Room    `json:"room,omitempty"`
	Players  []room.Player `json:"players,omitempty"`
	Gone     bool          `json:"gone,omitempty"`
	IsHost   bool          `json:"isHost,omitempty"`
	Role     *room.Role    `json:"role,omitempty"`
	Assigned bool          `json:"assigned,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func roomMessage(s view.Snapshot, uid string) wsMessage {
	msg := wsMessage{Type: "room", Players: s.Players, Gone: s.Gone}

	if s.Room != nil {
		redacted := room.Redact(*s.Room, uid)
		msg.Room = &redacted
		msg.IsHost = room.CanWrite(*s.Room, uid)
	}

	if s.Err != nil {
		msg.Error = room.Kind(s.Err)
	}

	return msg
}

func roleMessage(s view.RoleSnapshot) wsMessage {
	msg := wsMessage{Type: "role", Assigned: s.Assigned}

	if s.Assigned {
		role := s.Role
		msg.Role = &role
	}

	if s.Err != nil {
		msg.Error = room.Kind(s.Err)
	}

	return msg
}

// viewer is one websocket connection following a room.
type viewer struct {
	conn *websocket.Conn
	send chan wsMessage
	done chan struct{}
	once sync.Once
}

func newViewer(conn *websocket.Conn) *viewer {
	return &viewer{
		conn: conn,
		send: make(chan wsMessage, sendBuffer),
		done: make(chan struct{}),
	}
}

// push queues msg without blocking the store's delivery goroutine. A viewer
// too slow to drain its buffer is disconnected and left to reconnect.
func (v *viewer) push(msg wsMessage) {
	select {
	case <-v.done:
	case v.send <- msg:
	default:
		v.close()
	}
}

func (v *viewer) close() {
	v.once.Do(func() {
		close(v.done)
		_ = v.conn.Close()
	})
}

// readPump discards anything the client sends and returns once the
// connection drops or stops answering pings.
func (v *viewer) readPump() {
	defer v.close()

	v.conn.SetReadLimit(512)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (v *viewer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.close()
	}()

	for {
		select {
		case <-v.done:
			return
		case msg := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func serveWebsocket(a *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		code := p.ByName("code")
		if !room.IsValidRoomCode(code) {
			serveError(a, w, r, room.ErrInvalidRoomCode)

			return
		}

		id, err := deviceIdentity(a, w, r)
		if err != nil {
			serveError(a, w, r, err)

			return
		}

		exists, err := a.repo.Exists(r.Context(), code)
		switch {
		case err != nil:
			serveError(a, w, r, err)

			return
		case !exists:
			serveError(a, w, r, room.ErrRoomNotFound)

			return
		}

		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			a.log.Debug().Err(err).Str("ip", realIP(r)).Msg("websocket upgrade failed")

			return
		}

		a.metrics.viewers.Inc()
		defer a.metrics.viewers.Dec()

		logf(a.cfg, "WS: %s following room %s from %s", id.UID, code, realIP(r))

		v := newViewer(conn)
		model := view.New(a.repo)

		stopChanges := model.OnChange(func(s view.Snapshot) {
			// Player pushes can beat the room's own; hold them until it lands.
			if !s.Loaded && s.Err == nil {
				return
			}
			v.push(roomMessage(s, id.UID))
		})
		defer stopChanges()

		stopRoom := model.Subscribe(code)
		defer stopRoom()

		stopRole := model.SubscribeRole(code, id.UID, func(s view.RoleSnapshot) {
			v.push(roleMessage(s))
		})
		defer stopRole()

		go v.writePump()
		v.readPump()

		logf(a.cfg, "WS: %s stopped following room %s after %s",
			id.UID,
			code,
			time.Since(startTime).Round(time.Second),
		)
	}
}
