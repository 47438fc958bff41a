package relay

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	mathrand "math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kshaa/racer/internal/ids"
	"github.com/kshaa/racer/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP + websocket surface of the relay: user registry,
// lobby admission, and per-room forwarding, wired together behind
// github.com/gorilla/mux routing.
type Server struct {
	Router *mux.Router

	users *Users
	lobby *Lobby

	roomsMu sync.Mutex
	rooms   map[ids.RoomId]*Room

	dropRate float64
	rng      *mathrand.Rand
}

// NewServer builds the relay HTTP surface. dropRate is the tunable
// fault-injection fraction applied to every forwarded message.
func NewServer(dropRate float64) *Server {
	s := &Server{
		users:    NewUsers(),
		lobby:    NewLobby(),
		rooms:    make(map[ids.RoomId]*Room),
		dropRate: dropRate,
		rng:      newSeededRand(),
	}

	s.Router = mux.NewRouter()
	s.Router.HandleFunc("/user/register/{name}", s.handleRegister).Methods(http.MethodPost)
	s.Router.HandleFunc("/game/new/by/{pid}/ticket/{t}/player_count/{n}", s.handleNewGame).Methods(http.MethodPost)
	s.Router.HandleFunc("/game/join/{rid}/by/{pid}/ticket/{t}", s.handleJoin).Methods(http.MethodPost)
	s.Router.HandleFunc("/game/ready/{rid}/for/{pid}/ticket/{t}", s.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/game/config/{rid}/for/{pid}/ticket/{t}", s.handleConfig).Methods(http.MethodGet)
	s.Router.HandleFunc("/game/connect/{rid}/as/{pid}/ticket/{t}", s.handleConnect).Methods(http.MethodGet)

	return s
}

// newSeededRand seeds math/rand once from crypto/rand at process start,
// per the Open Question decision on the drop-policy RNG source: a
// debug fault-injection knob has no need for cryptographic
// unpredictability on every draw, only an unpredictable starting point.
func newSeededRand() *mathrand.Rand {
	var seedBytes [8]byte
	if _, err := cryptorand.Read(seedBytes[:]); err != nil {
		log.Printf("[WARN] relay: crypto/rand seed failed, falling back to a fixed seed: %v", err)
		return mathrand.New(mathrand.NewSource(1))
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return mathrand.New(mathrand.NewSource(seed))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAppError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*AppError)
	if !ok {
		appErr = newAppError(TagInternal, "%v", err)
	}

	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   string(appErr.Tag),
		"message": appErr.Message,
	})
}

func parsePlayerID(vars map[string]string, key string) (ids.PlayerId, error) {
	pid, err := ids.ParsePlayerId(vars[key])
	if err != nil {
		return ids.PlayerId{}, errBadMessage(fmt.Sprintf("malformed player id: %v", err))
	}
	return pid, nil
}

func parseRoomID(vars map[string]string, key string) (ids.RoomId, error) {
	rid, err := ids.ParseRoomId(vars[key])
	if err != nil {
		return ids.RoomId{}, errBadMessage(fmt.Sprintf("malformed room id: %v", err))
	}
	return rid, nil
}

// authenticate validates the (pid, ticket) pair carried by every
// authenticated endpoint. Mismatch is always reported as TicketInvalid,
// never distinguishing "no such user" from "wrong ticket".
func (s *Server) authenticate(vars map[string]string) (ids.PlayerId, error) {
	pid, err := parsePlayerID(vars, "pid")
	if err != nil {
		return ids.PlayerId{}, err
	}

	ticket := ids.Ticket(vars["t"])
	if !s.users.Authenticate(pid, ticket) {
		return ids.PlayerId{}, errTicketInvalid()
	}

	return pid, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	user, err := s.users.Add(name)
	if err != nil {
		writeAppError(w, err)
		return
	}

	usersRegistered.Inc()

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     user.ID.String(),
		"ticket": string(user.Ticket),
	})
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	pid, err := s.authenticate(vars)
	if err != nil {
		writeAppError(w, err)
		return
	}

	n, err := strconv.Atoi(vars["n"])
	if err != nil {
		writeAppError(w, errBadMessage("player_count must be an integer"))
		return
	}

	roomID, err := s.lobby.Create(pid, n)
	if err != nil {
		writeAppError(w, err)
		return
	}

	s.roomsMu.Lock()
	s.rooms[roomID] = NewRoom(roomID, s.dropRate, s.rng)
	s.roomsMu.Unlock()

	roomsActive.Inc()

	writeJSON(w, http.StatusOK, map[string]string{"room_id": roomID.String()})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	pid, err := s.authenticate(vars)
	if err != nil {
		writeAppError(w, err)
		return
	}

	rid, err := parseRoomID(vars, "rid")
	if err != nil {
		writeAppError(w, err)
		return
	}

	if err := s.lobby.Join(rid, pid); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	_, err := s.authenticate(vars)
	if err != nil {
		writeAppError(w, err)
		return
	}

	rid, err := parseRoomID(vars, "rid")
	if err != nil {
		writeAppError(w, err)
		return
	}

	signal, err := s.lobby.ReadySignal(rid)
	if err != nil {
		writeAppError(w, err)
		return
	}

	select {
	case <-signal:
	case <-r.Context().Done():
		return
	}

	roster, err := s.lobby.Roster(rid)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeRoster(w, roster)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	_, err := s.authenticate(vars)
	if err != nil {
		writeAppError(w, err)
		return
	}

	rid, err := parseRoomID(vars, "rid")
	if err != nil {
		writeAppError(w, err)
		return
	}

	roster, err := s.lobby.Roster(rid)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeRoster(w, roster)
}

func writeRoster(w http.ResponseWriter, roster []ids.PlayerId) {
	names := make([]string, len(roster))
	for i, p := range roster {
		names[i] = p.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": names})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	pid, err := s.authenticate(vars)
	if err != nil {
		writeAppError(w, err)
		return
	}

	rid, err := parseRoomID(vars, "rid")
	if err != nil {
		writeAppError(w, err)
		return
	}

	state, err := s.lobby.State(rid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if state != StateActive {
		writeAppError(w, errGameNotReady())
		return
	}

	if !s.isMemberOrReject(w, rid, pid) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] relay: websocket upgrade failed for %s: %v", pid, err)
		return
	}
	defer conn.Close()

	s.roomsMu.Lock()
	room := s.rooms[rid]
	s.roomsMu.Unlock()

	_ = s.lobby.MarkConnected(rid)
	defer func() { _ = s.lobby.MarkDisconnected(rid) }()

	handle := room.Join(pid)
	defer room.Leave(pid)

	done := make(chan struct{})
	go s.connectWriteLoop(conn, handle, done)
	s.connectReadLoop(conn, room, pid)
	close(done)
}

func (s *Server) isMemberOrReject(w http.ResponseWriter, rid ids.RoomId, pid ids.PlayerId) bool {
	isMember, err := s.lobby.IsMember(rid, pid)
	if err != nil {
		writeAppError(w, err)
		return false
	}
	if !isMember {
		writeAppError(w, errTicketInvalid())
		return false
	}
	return true
}

func (s *Server) connectReadLoop(conn *websocket.Conn, room *Room, sender ids.PlayerId) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			log.Printf("[WARN] relay: dropping malformed frame from %s: %v", sender, err)
			continue
		}

		outEnv, err := protocol.EncodeEnvelope(sender, []byte(env.Message))
		if err != nil {
			log.Printf("[WARN] relay: failed to re-encode frame from %s: %v", sender, err)
			continue
		}

		room.Forward(env.Address, outEnv)
	}
}

func (s *Server) connectWriteLoop(conn *websocket.Conn, handle *member, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-handle.closed:
			return
		case raw := <-handle.Out:
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}
