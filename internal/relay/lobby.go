package relay

import (
	"sync"

	"github.com/kshaa/racer/internal/ids"
)

// RoomState is a room's position in the admission state machine:
// Reserved -> Filling -> Ready -> Active -> Closed.
type RoomState int

const (
	StateReserved RoomState = iota
	StateFilling
	StateReady
	StateActive
	StateClosed
)

func (s RoomState) String() string {
	switch s {
	case StateReserved:
		return "Reserved"
	case StateFilling:
		return "Filling"
	case StateReady:
		return "Ready"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// roomMeta is one room's lobby bookkeeping: membership, state, and the
// wakeup signal for GET /game/ready waiters. The zero value is never
// used; construct with newRoomMeta.
type roomMeta struct {
	mu sync.Mutex

	id           ids.RoomId
	playerCount  int
	createdBy    ids.PlayerId
	players      []ids.PlayerId
	state        RoomState
	readyCh      chan struct{}
	readyClosed  bool
	liveMembers  int
}

func newRoomMeta(id ids.RoomId, playerCount int, by ids.PlayerId) *roomMeta {
	state := StateReserved
	if playerCount > 1 {
		state = StateFilling
	}

	return &roomMeta{
		id:          id,
		playerCount: playerCount,
		createdBy:   by,
		players:     []ids.PlayerId{by},
		state:       state,
		readyCh:     make(chan struct{}),
	}
}

func (r *roomMeta) isMember(pid ids.PlayerId) bool {
	for _, p := range r.players {
		if p == pid {
			return true
		}
	}
	return false
}

// Lobby is the registry of every reserved/filling/ready/active room. The
// map itself is a logically-exclusive resource, separate from each
// room's own admission lock.
type Lobby struct {
	mu    sync.Mutex
	rooms map[ids.RoomId]*roomMeta
}

func NewLobby() *Lobby {
	return &Lobby{rooms: make(map[ids.RoomId]*roomMeta)}
}

// Create reserves a new room for by, expecting playerCount total
// participants (by counts as the first).
func (l *Lobby) Create(by ids.PlayerId, playerCount int) (ids.RoomId, error) {
	if playerCount <= 1 {
		return ids.RoomId{}, errNotEnoughPlayers()
	}

	id := ids.NewRoomId()
	meta := newRoomMeta(id, playerCount, by)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.rooms[id]; exists {
		return ids.RoomId{}, errGameAlreadyExists(id)
	}

	l.rooms[id] = meta
	return id, nil
}

func (l *Lobby) lookup(id ids.RoomId) (*roomMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	meta, ok := l.rooms[id]
	if !ok {
		return nil, errGameDoesNotExist(id)
	}
	return meta, nil
}

// Join admits player into room id. Exactly the Nth join transitions the
// room to Ready (and then immediately Active, since nothing further
// gates accepting relay traffic) and wakes every ready_signal waiter.
func (l *Lobby) Join(id ids.RoomId, player ids.PlayerId) error {
	meta, err := l.lookup(id)
	if err != nil {
		return err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()

	if meta.isMember(player) {
		return nil // idempotent re-join
	}

	if len(meta.players) >= meta.playerCount {
		return errRoomFull()
	}

	meta.players = append(meta.players, player)

	if len(meta.players) == meta.playerCount {
		meta.state = StateReady
		if !meta.readyClosed {
			close(meta.readyCh)
			meta.readyClosed = true
		}
		meta.state = StateActive
	} else {
		meta.state = StateFilling
	}

	return nil
}

// ReadySignal returns a channel that is closed once room id reaches
// Ready, or an error if the room is unknown. If the room is already
// Ready or later, the returned channel is already closed.
func (l *Lobby) ReadySignal(id ids.RoomId) (<-chan struct{}, error) {
	meta, err := l.lookup(id)
	if err != nil {
		return nil, err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()

	return meta.readyCh, nil
}

// Roster returns the admitted player list for a Ready-or-later room.
func (l *Lobby) Roster(id ids.RoomId) ([]ids.PlayerId, error) {
	meta, err := l.lookup(id)
	if err != nil {
		return nil, err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()

	if meta.state == StateReserved || meta.state == StateFilling {
		return nil, errGameNotReady()
	}

	out := make([]ids.PlayerId, len(meta.players))
	copy(out, meta.players)
	return out, nil
}

// State returns the current admission state of room id.
func (l *Lobby) State(id ids.RoomId) (RoomState, error) {
	meta, err := l.lookup(id)
	if err != nil {
		return 0, err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()
	return meta.state, nil
}

// IsMember reports whether player was admitted to room id.
func (l *Lobby) IsMember(id ids.RoomId, player ids.PlayerId) (bool, error) {
	meta, err := l.lookup(id)
	if err != nil {
		return false, err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()
	return meta.isMember(player), nil
}

// MarkConnected and MarkDisconnected track live transport membership so
// the room can close once every connection has dropped, per the Active
// -> Closed transition.
func (l *Lobby) MarkConnected(id ids.RoomId) error {
	meta, err := l.lookup(id)
	if err != nil {
		return err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()
	meta.liveMembers++
	return nil
}

func (l *Lobby) MarkDisconnected(id ids.RoomId) error {
	meta, err := l.lookup(id)
	if err != nil {
		return err
	}

	meta.mu.Lock()
	defer meta.mu.Unlock()

	if meta.liveMembers > 0 {
		meta.liveMembers--
	}

	if meta.state == StateActive && meta.liveMembers == 0 {
		meta.state = StateClosed
		roomsActive.Dec()
	}

	return nil
}
