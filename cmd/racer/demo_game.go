package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/kshaa/racer/internal/ids"
	"github.com/kshaa/racer/internal/protocol"
	"github.com/kshaa/racer/internal/session"
	"github.com/kshaa/racer/internal/simulation"
)

// newDemoGameCmd runs a local-only match with no relay, no remote peers,
// and synthetic input: it exists to exercise the Session Core and
// simulation adapter end to end without any network dependency.
func newDemoGameCmd() *cobra.Command {
	var frames int

	cmd := &cobra.Command{
		Use:   "demo-game",
		Short: "run a local-only rollback match with no network peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemoGame(frames)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", session.DefaultFPS*5, "number of frames to simulate")

	return cmd
}

func runDemoGame(frames int) error {
	adapter := simulation.NewAdapter()
	local := ids.NewPlayerId()

	if err := adapter.Spawn(local, 0, 0); err != nil {
		return fmt.Errorf("demo-game: spawn local player: %w", err)
	}

	sess, err := session.New(session.Config{
		Adapter: adapter,
		Local:   local,
		Gate:    session.NewEnablePhysicsAfter(session.DefaultFPS, 1),
	})
	if err != nil {
		return fmt.Errorf("demo-game: init session: %w", err)
	}

	log.Printf("[INFO] demo-game: player %s, simulating %d frames", local, frames)

	for i := 0; i < frames; i++ {
		buttons := syntheticButtons(i)

		result, err := sess.Tick(buttons)
		if err != nil {
			return fmt.Errorf("demo-game: tick %d: %w", i, err)
		}
		if result.Stalled {
			log.Printf("[WARN] demo-game: stalled at frame %d (no remote peers to confirm against)", i)
		}
	}

	for _, c := range adapter.Snapshot() {
		log.Printf("[INFO] demo-game: final state player=%s x=%.2f y=%.2f heading=%.2f speed=%.2f",
			c.PlayerID, c.X, c.Y, c.Heading, c.Speed)
	}

	return nil
}

// syntheticButtons produces a deterministic, time-varying control
// sequence so a demo run has visible motion without needing a keyboard.
func syntheticButtons(frame int) uint16 {
	phase := (frame / 90) % 4

	switch phase {
	case 0:
		return protocol.InputAccelerate
	case 1:
		return protocol.InputAccelerate | protocol.InputSteerRight
	case 2:
		return protocol.InputAccelerate | protocol.InputSteerLeft
	default:
		return protocol.InputBrake
	}
}
