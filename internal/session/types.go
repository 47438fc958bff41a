// Package session implements the rollback loop, per-peer input buffers,
// savestate ring, sideband checksum exchange and physics-gate state
// machine that keep every peer's simulation bit-identical.
package session

import (
	"fmt"

	"github.com/kshaa/racer/internal/ids"
	"github.com/kshaa/racer/internal/protocol"
)

// Frame is re-exported from protocol so callers of this package don't
// need to import it separately for the common case.
type Frame = protocol.Frame

const NullFrame = protocol.NullFrame

// Default tuning: a twelve-frame prediction window before stalling, and a
// thirty-frame desync history depth.
const (
	DefaultMaxPredictionWindow = 12
	DefaultDesyncMaxFrames     = 30
	DefaultFPS                 = 60
)

// InputStatus distinguishes an authoritative input from a locally
// speculated stand-in.
type InputStatus uint8

const (
	StatusPredicted InputStatus = iota
	StatusConfirmed
)

func (s InputStatus) String() string {
	if s == StatusConfirmed {
		return "confirmed"
	}
	return "predicted"
}

// InputEntry is one slot of an InputBuffer: the input itself plus whether
// it is authoritative or speculated.
type InputEntry struct {
	Frame  Frame
	Input  protocol.Input
	Status InputStatus
	Set    bool
}

// FrameHashLocal is the local bookkeeping entry for one of our own
// savestate checksums, tracking the three independent booleans the
// desync protocol needs: confirmed, sent, validated.
type FrameHashLocal struct {
	Frame     Frame
	Checksum  uint16
	Confirmed bool
	Sent      bool
	Validated bool
	Set       bool
}

// FrameHashRemote is what a peer reported to us about one of their own
// frames, via the Input sideband channel.
type FrameHashRemote struct {
	Frame     Frame
	Checksum  uint16
	Validated bool
	Set       bool
}

// RollbackStatus reports whether the core is mid-rollback and, if so,
// which frame triggered it.
type RollbackStatus struct {
	IsRollback    bool
	RollbackFrame Frame
}

// EnablePhysicsAfter is the interval during which the physics step is a
// no-op, used at match start so peers converge on an initial state before
// simulation begins. The boundary frames Start and End themselves already
// step physics: only the strictly-interior frames are gated.
type EnablePhysicsAfter struct {
	Start Frame
	End   Frame
}

// NewEnablePhysicsAfter builds the load-in gate spanning loadSeconds worth
// of frames at the given tick rate.
func NewEnablePhysicsAfter(fps, loadSeconds int) EnablePhysicsAfter {
	return EnablePhysicsAfter{Start: 0, End: Frame(fps * loadSeconds)}
}

// Gated reports whether the physics step is a no-op at frame f.
func (g EnablePhysicsAfter) Gated(f Frame) bool {
	return f > g.Start && f < g.End
}

// DesyncError is returned by Tick when the desync detector finds a
// checksum mismatch for a validatable frame. It is fatal to the match.
type DesyncError struct {
	Frame          Frame
	LocalChecksum  uint16
	RemoteChecksum uint16
	Peer           ids.PlayerId
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("session: desync at frame %d: local checksum %#04x != remote checksum %#04x (peer %s)",
		e.Frame, e.LocalChecksum, e.RemoteChecksum, e.Peer)
}

// TickResult is what Tick produced. A prediction-window stall is
// surfaced via Stalled rather than as an error value, so that stalling
// (an expected, recoverable state) is never confused with a returned
// error by callers using the standard if err != nil idiom.
type TickResult struct {
	Output  protocol.Input
	Stalled bool
}
