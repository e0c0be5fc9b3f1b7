package ws

import (
	"encoding/json"
	"sync"
	"time"

	"chess-coordinator/internal/shared"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Session is one websocket connection. roomCode and identity are guarded by
// the hub mutex; a session is bound to at most one room.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	roomCode string
	identity string

	mu     sync.Mutex
	closed bool
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	return &Session{
		id:   newSessionID(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (s *Session) ID() string { return s.id }

// enqueue queues msg without blocking and reports whether it was accepted.
func (s *Session) enqueue(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// reply sends a private event straight to this session.
func (s *Session) reply(roomCode, action string, data interface{}) {
	msg, err := json.Marshal(shared.Event{Action: action, Room: roomCode, Data: data})
	if err != nil {
		s.logger().WithError(err).Error("encode reply")
		return
	}
	if !s.enqueue(msg) {
		s.kick()
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// kick closes the connection so the read pump exits and disconnects.
func (s *Session) kick() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Session) logger() *logrus.Entry {
	return s.hub.log.WithField("session", s.id)
}

// ReadPump feeds inbound frames to the hub until the connection fails.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Disconnect(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger().WithError(err).Warn("websocket read error")
			} else {
				s.logger().Debug("websocket closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.logger().Debugf("ignoring non-text frame type %d", messageType)
			continue
		}
		s.hub.Handle(s, message)
	}
}

// WritePump drains the send buffer to the connection and keeps it alive with
// pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger().WithError(err).Warn("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger().WithError(err).Debug("ping failed")
				return
			}
		}
	}
}
