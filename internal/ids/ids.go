// Package ids implements the opaque identifiers shared by the session
// core, transport and relay: PlayerId, RoomId and Ticket.
package ids

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// PlayerId is an opaque 128-bit player identifier.
type PlayerId uuid.UUID

func NewPlayerId() PlayerId {
	return PlayerId(uuid.New())
}

func ParsePlayerId(s string) (PlayerId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PlayerId{}, err
	}
	return PlayerId(u), nil
}

func (id PlayerId) String() string {
	return uuid.UUID(id).String()
}

func (id PlayerId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *PlayerId) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = PlayerId(u)
	return nil
}

// RoomId is an opaque 128-bit room identifier.
type RoomId uuid.UUID

func NewRoomId() RoomId {
	return RoomId(uuid.New())
}

func ParseRoomId(s string) (RoomId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RoomId{}, err
	}
	return RoomId(u), nil
}

func (id RoomId) String() string {
	return uuid.UUID(id).String()
}

func (id RoomId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *RoomId) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = RoomId(u)
	return nil
}

// Ticket is a short opaque bearer secret bound to a PlayerId at
// registration. It is never surfaced again after admission.
type Ticket string

const (
	ticketLength  = 20
	ticketCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewTicket generates a random bearer ticket using crypto/rand.
func NewTicket() (Ticket, error) {
	buf := make([]byte, ticketLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, ticketLength)
	for i, b := range buf {
		out[i] = ticketCharset[int(b)%len(ticketCharset)]
	}

	return Ticket(out), nil
}
