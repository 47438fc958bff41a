package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kshaa/racer/internal/ids"
	"github.com/kshaa/racer/internal/protocol"
	"github.com/kshaa/racer/internal/session"
	"github.com/kshaa/racer/internal/simulation"
	"github.com/kshaa/racer/internal/transport"
)

type roomConfig struct {
	Players []string `json:"players"`
}

func newConnectGameCmd() *cobra.Command {
	var (
		httpBaseURL    string
		wsBaseURL      string
		userID         string
		userTicket     string
		roomID         string
		roomConfigJSON string
	)

	cmd := &cobra.Command{
		Use:   "connect-game",
		Short: "join a relay-hosted rollback match against remote peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnectGame(connectGameOpts{
				httpBaseURL:    httpBaseURL,
				wsBaseURL:      wsBaseURL,
				userID:         userID,
				userTicket:     userTicket,
				roomID:         roomID,
				roomConfigJSON: roomConfigJSON,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&httpBaseURL, "http-baseurl", "", "relay HTTP base URL")
	flags.StringVar(&wsBaseURL, "ws-baseurl", "", "relay websocket base URL")
	flags.StringVar(&userID, "user-id", "", "this player's registered id")
	flags.StringVar(&userTicket, "user-ticket", "", "this player's bearer ticket")
	flags.StringVar(&roomID, "room-id", "", "room to connect to")
	flags.StringVar(&roomConfigJSON, "room-config-json", "", `room roster, e.g. {"players":["<uuid>", ...]}`)

	for _, name := range []string{"http-baseurl", "ws-baseurl", "user-id", "user-ticket", "room-id", "room-config-json"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

type connectGameOpts struct {
	httpBaseURL    string
	wsBaseURL      string
	userID         string
	userTicket     string
	roomID         string
	roomConfigJSON string
}

func runConnectGame(o connectGameOpts) error {
	local, err := ids.ParsePlayerId(o.userID)
	if err != nil {
		return fmt.Errorf("connect-game: bad --user-id: %w", err)
	}

	rid, err := ids.ParseRoomId(o.roomID)
	if err != nil {
		return fmt.Errorf("connect-game: bad --room-id: %w", err)
	}

	var cfg roomConfig
	if err := json.Unmarshal([]byte(o.roomConfigJSON), &cfg); err != nil {
		return fmt.Errorf("connect-game: bad --room-config-json: %w", err)
	}

	roster := make([]ids.PlayerId, 0, len(cfg.Players))
	for _, s := range cfg.Players {
		pid, err := ids.ParsePlayerId(s)
		if err != nil {
			return fmt.Errorf("connect-game: bad player id %q in roster: %w", s, err)
		}
		roster = append(roster, pid)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].String() < roster[j].String() })

	var peers []ids.PlayerId
	for _, pid := range roster {
		if pid != local {
			peers = append(peers, pid)
		}
	}

	adapter := simulation.NewAdapter()
	for i, pid := range roster {
		x := float64(i) * 5.0
		if err := adapter.Spawn(pid, x, 0); err != nil {
			return fmt.Errorf("connect-game: spawn %s: %w", pid, err)
		}
	}

	sess, err := session.New(session.Config{
		Adapter: adapter,
		Local:   local,
		Peers:   peers,
		Gate:    session.NewEnablePhysicsAfter(session.DefaultFPS, 1),
	})
	if err != nil {
		return fmt.Errorf("connect-game: init session: %w", err)
	}

	url := fmt.Sprintf("%s/game/connect/%s/as/%s/ticket/%s", o.wsBaseURL, rid, local, o.userTicket)
	link := transport.Connect(url)
	defer link.Close()

	if err := waitOpened(link, 10*time.Second); err != nil {
		return fmt.Errorf("connect-game: %w", err)
	}

	log.Printf("[INFO] connect-game: connected to room %s as %s with %d peer(s)", rid, local, len(peers))

	return runMatchLoop(sess, link, local)
}

func waitOpened(link *transport.Transport, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !link.Opened() {
		if err := link.Err(); err != nil {
			return fmt.Errorf("transport failed before opening: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for transport to open")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// runMatchLoop drives the tick loop at a fixed 60Hz cadence. Per-peer
// input messages carry no explicit frame number on the wire: each peer
// sends exactly one message per local tick it produces, so the Nth
// message received from a peer is that peer's frame N. nextRemoteFrame
// tracks this per-peer sequence.
func runMatchLoop(sess *session.Session, link *transport.Transport, local ids.PlayerId) error {
	ticker := time.NewTicker(time.Second / time.Duration(session.DefaultFPS))
	defer ticker.Stop()

	nextRemoteFrame := make(map[ids.PlayerId]session.Frame)
	for _, peer := range sess.Peers() {
		nextRemoteFrame[peer] = 0
	}

	for range ticker.C {
		if err := link.Err(); err != nil {
			return fmt.Errorf("connect-game: transport: %w", err)
		}

		for _, dg := range link.ReceiveAll() {
			in, err := protocol.DecodeInput(dg.Payload)
			if err != nil {
				log.Printf("[WARN] connect-game: dropping malformed input from %s: %v", dg.Peer, err)
				continue
			}

			f := nextRemoteFrame[dg.Peer]
			if err := sess.HandleRemoteInput(dg.Peer, f, in); err != nil {
				log.Printf("[WARN] connect-game: %v", err)
				continue
			}
			nextRemoteFrame[dg.Peer] = f + 1
		}

		result, err := sess.Tick(syntheticButtons(int(sess.CurrentFrame())))
		if err != nil {
			log.Printf("[ERROR] connect-game: fatal: %v", err)
			os.Exit(1)
		}
		if result.Stalled {
			continue
		}

		payload, err := protocol.EncodeInput(result.Output)
		if err != nil {
			log.Printf("[WARN] connect-game: failed to encode outbound input: %v", err)
			continue
		}

		for _, peer := range sess.Peers() {
			link.SendTo(peer, payload)
		}
	}

	return nil
}
