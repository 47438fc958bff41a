// Package transport implements a non-blocking, best-effort datagram link:
// a client dials the relay over github.com/gorilla/websocket, and the
// session core drains whatever has arrived once per tick without ever
// blocking on the socket.
package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kshaa/racer/internal/ids"
)

// Datagram is one opaque, sender/recipient-addressed payload crossing the
// transport boundary. Payload is never interpreted here; Session Core and
// Relay Server attach meaning to it via internal/protocol.
type Datagram struct {
	Peer    ids.PlayerId
	Payload []byte
}

const (
	sendQueueDepth = 1000
	recvQueueDepth = 1000

	// pongWait/pingPeriod mirror the conventional gorilla/websocket
	// keep-alive pairing: this side pings every pingPeriod and must see a
	// pong at least every pongWait, or the read fails and the link is
	// considered gone.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Transport is one client's link to the relay: a single websocket
// connection multiplexing datagrams addressed to/from any number of
// peers in the same room.
type Transport struct {
	conn *websocket.Conn

	toSend chan outbound
	toRecv chan Datagram
	stop   chan struct{}
	once   sync.Once

	opened atomic.Bool
	err    atomic.Value // error
}

type outbound struct {
	recipient ids.PlayerId
	payload   []byte
}

// wireEnvelope is the JSON frame exchanged over the socket; it mirrors
// internal/protocol.Envelope but lives here too so transport has no
// compile-time dependency on the protocol package's message semantics.
type wireEnvelope struct {
	Address ids.PlayerId `json:"address"`
	Message string       `json:"message"`
}

// Connect dials url asynchronously and returns immediately with a handle
// whose Opened() flips true once the handshake completes. Sends issued
// before that point are discarded.
func Connect(url string) *Transport {
	t := &Transport{
		toSend: make(chan outbound, sendQueueDepth),
		toRecv: make(chan Datagram, recvQueueDepth),
		stop:   make(chan struct{}),
	}

	go t.dial(url)

	return t
}

func (t *Transport) dial(url string) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.fail(fmt.Errorf("transport: dial %s: %w", url, err))
		return
	}

	t.conn = conn
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	t.opened.Store(true)

	go t.readLoop()
	go t.writeLoop()
}

func (t *Transport) readLoop() {
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(fmt.Errorf("transport: read: %w", err))
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[WARN] transport: dropping malformed frame: %v", err)
			continue
		}

		select {
		case t.toRecv <- Datagram{Peer: env.Address, Payload: []byte(env.Message)}:
		default:
			log.Printf("[WARN] transport: inbound queue full, dropping frame from %s", env.Address)
		}
	}
}

func (t *Transport) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return

		case <-ticker.C:
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.fail(fmt.Errorf("transport: ping: %w", err))
				return
			}

		case out := <-t.toSend:
			env := wireEnvelope{Address: out.recipient, Message: string(out.payload)}
			raw, err := json.Marshal(env)
			if err != nil {
				log.Printf("[WARN] transport: dropping unencodable frame: %v", err)
				continue
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				t.fail(fmt.Errorf("transport: write: %w", err))
				return
			}
		}
	}
}

func (t *Transport) fail(err error) {
	t.err.Store(err)
	t.once.Do(func() { close(t.stop) })
}

// Opened reports whether the handshake has completed.
func (t *Transport) Opened() bool { return t.opened.Load() }

// Err returns the fatal error that closed the transport, if any.
func (t *Transport) Err() error {
	v := t.err.Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

// SendTo enqueues payload for recipient. Best-effort: silently discarded
// if the transport is not yet open or the outbound queue is saturated.
func (t *Transport) SendTo(recipient ids.PlayerId, payload []byte) {
	if !t.Opened() {
		return
	}

	select {
	case t.toSend <- outbound{recipient: recipient, payload: payload}:
	default:
		log.Printf("[WARN] transport: outbound queue full, dropping frame to %s", recipient)
	}
}

// ReceiveAll drains every datagram currently buffered, without blocking.
func (t *Transport) ReceiveAll() []Datagram {
	var out []Datagram
	for {
		select {
		case d := <-t.toRecv:
			out = append(out, d)
		default:
			return out
		}
	}
}

// Close tears down the connection and stops its worker goroutines.
func (t *Transport) Close() error {
	t.once.Do(func() { close(t.stop) })
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
