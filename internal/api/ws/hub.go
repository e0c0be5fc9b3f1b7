package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"chess-coordinator/internal/game"
	"chess-coordinator/internal/room"
	"chess-coordinator/internal/shared"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Inbound actions.
const (
	ActionJoin  = "join"
	ActionMove  = "move"
	ActionLeave = "leave"
)

var errAlreadyJoined = errors.New("session already joined a room")

type inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type joinData struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

type moveData struct {
	Room      string `json:"room"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion"`
}

type leaveData struct {
	Room string `json:"room"`
}

// Hub maps live sessions to the rooms they joined and fans room events out to
// them. It implements room.Broadcaster.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	rooms       map[string]map[*Session]struct{}
	roomManager RoomManager

	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewHub(log *logrus.Entry, allowedOrigins []string) *Hub {
	h := &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[*Session]struct{}),
		log:      log.WithField("component", "hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetRoomManager wires the registry after construction; the registry needs
// the hub as its broadcaster first.
func (h *Hub) SetRoomManager(rm RoomManager) {
	h.mu.Lock()
	h.roomManager = rm
	h.mu.Unlock()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWS upgrades the request and serves the session until the connection
// drops. Optional room and identity query parameters join immediately.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s := newSession(h, conn)
	h.register(s)
	h.log.WithFields(logrus.Fields{"session": s.id, "remote": c.ClientIP()}).Info("session connected")

	go s.WritePump()

	if code, identity := c.Query("room"), c.Query("identity"); code != "" && identity != "" {
		h.join(s, joinData{Room: code, Identity: identity})
	}
	s.ReadPump()
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) manager() RoomManager {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roomManager
}

// Handle processes one inbound frame for s. Frames of one session are handled
// in arrival order.
func (h *Hub) Handle(s *Session, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.reply("", shared.ActionError, shared.ErrorPayload{Error: "malformed message"})
		return
	}

	switch msg.Action {
	case ActionJoin:
		var d joinData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.reply("", shared.ActionError, shared.ErrorPayload{Error: "malformed join"})
			return
		}
		h.join(s, d)
	case ActionMove:
		var d moveData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.reply("", shared.ActionError, shared.ErrorPayload{Error: "malformed move"})
			return
		}
		h.move(s, d)
	case ActionLeave:
		var d leaveData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &d); err != nil {
				s.reply("", shared.ActionError, shared.ErrorPayload{Error: "malformed leave"})
				return
			}
		}
		h.leave(s, d)
	default:
		h.log.WithFields(logrus.Fields{"session": s.id, "action": msg.Action}).Debug("unknown action")
		s.reply("", shared.ActionError, shared.ErrorPayload{Error: "unknown action"})
	}
}

func (h *Hub) join(s *Session, d joinData) {
	code := shared.NormalizeCode(d.Room)
	identity := strings.TrimSpace(d.Identity)
	if code == "" || identity == "" {
		s.reply(code, shared.ActionError, shared.ErrorPayload{Error: "room and identity are required"})
		return
	}

	// Membership is recorded before the room is entered so the events the
	// join itself emits reach this session.
	if err := h.attach(s, code, identity); err != nil {
		s.reply(code, shared.ActionError, shared.ErrorPayload{Error: err.Error()})
		return
	}

	_, res, err := h.manager().Join(code, identity)
	if err != nil {
		h.detach(s)
		h.log.WithFields(logrus.Fields{"room": code, "identity": identity}).WithError(err).Info("join rejected")
		s.reply(code, shared.ActionError, shared.ErrorPayload{Error: err.Error()})
		return
	}
	h.log.WithFields(logrus.Fields{
		"session":  s.id,
		"room":     code,
		"identity": identity,
		"color":    res.Color,
		"resumed":  res.Resumed,
	}).Debug("session joined room")
}

func (h *Hub) move(s *Session, d moveData) {
	code, identity := h.membership(s)
	if code == "" {
		s.reply(shared.NormalizeCode(d.Room), shared.ActionMoveRejected, shared.MoveRejectedPayload{
			From: d.From, To: d.To, Reason: "not joined to a room",
		})
		return
	}
	if d.Room != "" && shared.NormalizeCode(d.Room) != code {
		s.reply(code, shared.ActionMoveRejected, shared.MoveRejectedPayload{
			From: d.From, To: d.To, Reason: room.ErrUnknownRoom.Error(),
		})
		return
	}

	mv := game.Move{From: d.From, To: d.To, Promotion: d.Promotion}
	if err := h.manager().Move(code, identity, mv); err != nil {
		h.log.WithFields(logrus.Fields{"room": code, "identity": identity, "from": d.From, "to": d.To}).
			WithError(err).Debug("move rejected")
		s.reply(code, shared.ActionMoveRejected, shared.MoveRejectedPayload{From: d.From, To: d.To, Reason: err.Error()})
	}
}

func (h *Hub) leave(s *Session, d leaveData) {
	code, identity := h.membership(s)
	if code == "" || (d.Room != "" && shared.NormalizeCode(d.Room) != code) {
		return
	}
	h.detach(s)
	if err := h.manager().Leave(code, identity, room.CauseResign); err != nil {
		h.log.WithFields(logrus.Fields{"room": code, "identity": identity}).WithError(err).Debug("leave ignored")
	}
}

// Disconnect forgets s and leaves every room it had joined, unless another
// live session still holds the same seat.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)

	type seat struct{ code, identity string }
	var joined []seat
	if s.roomCode != "" {
		joined = append(joined, seat{s.roomCode, s.identity})
		h.removeLocked(s)
	}
	var leaving []seat
	for _, m := range joined {
		if !h.heldLocked(m.code, m.identity) {
			leaving = append(leaving, m)
		}
	}
	rm := h.roomManager
	h.mu.Unlock()

	s.close()
	for _, m := range leaving {
		logCtx := h.log.WithFields(logrus.Fields{"room": m.code, "identity": m.identity})
		if err := rm.Leave(m.code, m.identity, room.CauseDisconnect); err != nil {
			logCtx.WithError(err).Debug("disconnect leave ignored")
			continue
		}
		// A session of the same identity may have rejoined between the
		// held check and Leave; its resume ran before the window opened.
		h.mu.RLock()
		held := h.heldLocked(m.code, m.identity)
		h.mu.RUnlock()
		if !held {
			continue
		}
		if _, _, err := rm.Join(m.code, m.identity); err != nil {
			logCtx.WithError(err).Warn("could not resume seat after racing reconnect")
		} else {
			logCtx.Debug("seat resumed after racing reconnect")
		}
	}
	h.log.WithField("session", s.id).Info("session disconnected")
}

func (h *Hub) attach(s *Session, code, identity string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.roomCode != "" && (s.roomCode != code || s.identity != identity) {
		return errAlreadyJoined
	}
	members, ok := h.rooms[code]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[code] = members
	}
	members[s] = struct{}{}
	s.roomCode, s.identity = code, identity
	return nil
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	h.removeLocked(s)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(s *Session) {
	if members, ok := h.rooms[s.roomCode]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, s.roomCode)
		}
	}
	s.roomCode, s.identity = "", ""
}

func (h *Hub) heldLocked(code, identity string) bool {
	for other := range h.rooms[code] {
		if other.identity == identity {
			return true
		}
	}
	return false
}

func (h *Hub) membership(s *Session) (string, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return s.roomCode, s.identity
}

// Broadcast delivers ev to every session of roomCode whose identity is in
// members. It never blocks; a session that cannot keep up is dropped.
func (h *Hub) Broadcast(roomCode string, members []string, ev shared.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("action", ev.Action).Error("encode event")
		return
	}
	seated := make(map[string]struct{}, len(members))
	for _, m := range members {
		seated[m] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[roomCode] {
		if _, ok := seated[s.identity]; !ok {
			continue
		}
		if !s.enqueue(msg) {
			h.log.WithFields(logrus.Fields{"session": s.id, "room": roomCode}).Warn("send buffer full, dropping session")
			s.kick()
		}
	}
}

// Send delivers ev to the sessions of roomCode bound to identity.
func (h *Hub) Send(roomCode, identity string, ev shared.Event) {
	h.Broadcast(roomCode, []string{identity}, ev)
}

// Close drops every live connection. Read pumps then run the usual
// disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.kick()
	}
	h.log.WithField("sessions", len(sessions)).Info("hub closed")
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func newSessionID() string {
	return uuid.NewString()
}
