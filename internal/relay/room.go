package relay

import (
	"math/rand"
	"sync"

	"github.com/kshaa/racer/internal/ids"
)

const memberOutboxDepth = 256

// member is one connected participant's owned outbound queue. Writer
// goroutines in the HTTP layer drain Out; Room only ever enqueues.
type member struct {
	pid       ids.PlayerId
	Out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newMember(pid ids.PlayerId) *member {
	return &member{
		pid:    pid,
		Out:    make(chan []byte, memberOutboxDepth),
		closed: make(chan struct{}),
	}
}

func (m *member) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Room is the forwarding runtime for one Active room: the live
// connection handles and the fault-injection drop policy. The member
// map is a logically-exclusive resource; Forward only holds the lock
// long enough to snapshot the recipient's outbound handle, then sends
// outside it so a slow recipient cannot block the room.
type Room struct {
	mu       sync.RWMutex
	id       ids.RoomId
	members  map[ids.PlayerId]*member
	dropRate float64
	rng      *rand.Rand
}

// rngMu serializes draws from the rng that rooms share; one lock for all
// rooms, since math/rand.Rand is not safe for concurrent use.
var rngMu sync.Mutex

// NewRoom constructs the forwarding runtime for id. rng should be a
// single process-wide source seeded once at startup, shared across
// rooms; dropRate is the tunable fault-injection fraction in [0, 1).
func NewRoom(id ids.RoomId, dropRate float64, rng *rand.Rand) *Room {
	return &Room{
		id:       id,
		members:  make(map[ids.PlayerId]*member),
		dropRate: dropRate,
		rng:      rng,
	}
}

// Join registers pid's connection and returns its outbound handle.
func (r *Room) Join(pid ids.PlayerId) *member {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := newMember(pid)
	r.members[pid] = m
	return m
}

// Leave unregisters pid's connection, closing its outbound handle.
func (r *Room) Leave(pid ids.PlayerId) {
	r.mu.Lock()
	m, ok := r.members[pid]
	if ok {
		delete(r.members, pid)
	}
	r.mu.Unlock()

	if ok {
		m.Close()
	}
}

func (r *Room) randomDrop() bool {
	if r.dropRate <= 0 {
		return false
	}

	rngMu.Lock()
	roll := r.rng.Float64()
	rngMu.Unlock()

	return roll < r.dropRate
}

// Forward delivers payload to recipient's outbound queue iff recipient
// is a member of this room. Delivery is dropped (silently, from the
// sender's point of view) when the recipient is unknown, when the
// fault-injection policy rolls a drop, or when the recipient's queue is
// saturated.
func (r *Room) Forward(recipient ids.PlayerId, payload []byte) {
	r.mu.RLock()
	target, ok := r.members[recipient]
	r.mu.RUnlock()

	if !ok {
		messagesDropped.WithLabelValues(dropReasonUnknownRecipient).Inc()
		return
	}

	if r.randomDrop() {
		messagesDropped.WithLabelValues(dropReasonFaultInjection).Inc()
		return
	}

	select {
	case target.Out <- payload:
		messagesForwarded.Inc()
	default:
		messagesDropped.WithLabelValues(dropReasonBackpressure).Inc()
	}
}
