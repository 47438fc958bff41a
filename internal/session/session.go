package session

import (
	"fmt"
	"sort"

	"github.com/kshaa/racer/internal/ids"
	"github.com/kshaa/racer/internal/protocol"
	"github.com/kshaa/racer/internal/ringbuf"
)

// Adapter is the simulation dependency the Session Core drives. It is
// satisfied by *simulation.Adapter; kept as an interface here so the core
// can be tested against a fake without importing the physics package.
type Adapter interface {
	Step(inputs map[ids.PlayerId]protocol.Input)
	SaveState() ([]byte, error)
	LoadState(data []byte) error
}

type savestateEntry struct {
	Frame Frame
	Data  []byte
	Set   bool
}

// Session is the single-threaded rollback core for one local player
// talking to a fixed set of remote peers. Every exported method is
// intended to be called from one cooperative tick loop; there are no
// internal suspension points.
type Session struct {
	adapter  Adapter
	local    ids.PlayerId
	peers    []ids.PlayerId
	window   int
	gate     EnablePhysicsAfter
	hashCap  int

	currentFrame        Frame
	currentSessionFrame Frame
	confirmedFrame       Frame
	rollback             RollbackStatus

	localInputs  *ringbuf.FixedRing[InputEntry]
	remoteInputs map[ids.PlayerId]*ringbuf.FixedRing[InputEntry]

	confirmedUpTo map[ids.PlayerId]Frame
	lastRemote    map[ids.PlayerId]uint16

	savestates *ringbuf.FixedRing[savestateEntry]

	localHashes  *ringbuf.FixedRing[FrameHashLocal]
	remoteHashes map[ids.PlayerId]*ringbuf.FixedRing[FrameHashRemote]
}

// Config bundles the construction parameters for a Session.
type Config struct {
	Adapter             Adapter
	Local               ids.PlayerId
	Peers               []ids.PlayerId
	MaxPredictionWindow int
	DesyncMaxFrames     int
	Gate                EnablePhysicsAfter
}

// New constructs a Session at frame 0 and saves the adapter's current
// state as the frame-0 savestate, so a rollback to frame 0 has a base to
// restore. No local hash is recorded for frame 0.
func New(cfg Config) (*Session, error) {
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("session: adapter is required")
	}

	window := cfg.MaxPredictionWindow
	if window <= 0 {
		window = DefaultMaxPredictionWindow
	}

	hashCap := cfg.DesyncMaxFrames
	if hashCap <= 0 {
		hashCap = DefaultDesyncMaxFrames
	}

	s := &Session{
		adapter:       cfg.Adapter,
		local:         cfg.Local,
		peers:         append([]ids.PlayerId(nil), cfg.Peers...),
		window:        window,
		hashCap:       hashCap,
		gate:          cfg.Gate,
		confirmedFrame: NullFrame,
		localInputs:   ringbuf.NewFixedRing[InputEntry](window + 1),
		remoteInputs:  make(map[ids.PlayerId]*ringbuf.FixedRing[InputEntry], len(cfg.Peers)),
		confirmedUpTo: make(map[ids.PlayerId]Frame, len(cfg.Peers)),
		lastRemote:    make(map[ids.PlayerId]uint16, len(cfg.Peers)),
		savestates:    ringbuf.NewFixedRing[savestateEntry](window + 1),
		localHashes:   ringbuf.NewFixedRing[FrameHashLocal](hashCap),
		remoteHashes:  make(map[ids.PlayerId]*ringbuf.FixedRing[FrameHashRemote], len(cfg.Peers)),
	}

	for _, p := range cfg.Peers {
		s.remoteInputs[p] = ringbuf.NewFixedRing[InputEntry](window + 1)
		s.remoteHashes[p] = ringbuf.NewFixedRing[FrameHashRemote](hashCap)
		s.confirmedUpTo[p] = NullFrame
	}

	data, err := s.adapter.SaveState()
	if err != nil {
		return nil, fmt.Errorf("session: initial savestate: %w", err)
	}
	*s.savestates.Slot(0) = savestateEntry{Frame: 0, Data: data, Set: true}

	return s, nil
}

func (s *Session) CurrentFrame() Frame        { return s.currentFrame }
func (s *Session) ConfirmedFrame() Frame      { return s.confirmedFrame }
func (s *Session) RollbackStatus() RollbackStatus { return s.rollback }

// Validatable reports whether frame f is old enough, and confirmed
// enough, that its checksum may safely enter the desync comparison.
func (s *Session) Validatable(f Frame) bool {
	return f <= s.confirmedFrame && s.currentFrame-f > Frame(s.window)
}

// HandleRemoteInput records an authoritative input reported by peer for
// frame f, including its piggybacked sideband checksum if present. It
// may set RollbackStatus; the caller must check RollbackStatus() (or
// simply call Tick, which resolves it automatically) before the next
// simulation step.
func (s *Session) HandleRemoteInput(peer ids.PlayerId, f Frame, in protocol.Input) error {
	ring, ok := s.remoteInputs[peer]
	if !ok {
		return fmt.Errorf("session: unknown peer %s", peer)
	}

	slot := ring.Slot(int(f))
	wasPredicted := slot.Set && slot.Frame == f && slot.Status == StatusPredicted
	predictedInput := slot.Input

	if slot.Set && slot.Frame == f && slot.Status == StatusConfirmed {
		// Resend of an already-confirmed frame; must be identical.
		if slot.Input.Buttons != in.Buttons {
			return fmt.Errorf("session: peer %s resent frame %d with different input", peer, f)
		}
	} else {
		*slot = InputEntry{Frame: f, Input: in, Status: StatusConfirmed, Set: true}
	}

	s.lastRemote[peer] = in.Buttons

	if next := s.confirmedUpTo[peer] + 1; f == next {
		s.confirmedUpTo[peer] = f
		// Absorb any further frames already buffered contiguously (can
		// happen if a burst of inputs arrived together).
		for {
			nf := s.confirmedUpTo[peer] + 1
			nslot := ring.Slot(int(nf))
			if nslot.Set && nslot.Frame == nf && nslot.Status == StatusConfirmed {
				s.confirmedUpTo[peer] = nf
				continue
			}
			break
		}
	}

	s.recomputeConfirmedFrame()

	if f < s.currentFrame {
		if (wasPredicted && predictedInput.Buttons != in.Buttons) || !wasPredicted {
			s.requestRollback(f)
		}
	}

	if in.LastConfirmedFrame != NullFrame {
		if err := s.recordRemoteHash(peer, in.LastConfirmedFrame, in.LastConfirmedHash); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) recordRemoteHash(peer ids.PlayerId, f Frame, checksum uint16) error {
	ring, ok := s.remoteHashes[peer]
	if !ok {
		return fmt.Errorf("session: unknown peer %s", peer)
	}

	slot := ring.Slot(int(f))
	if slot.Set && slot.Frame == f {
		if slot.Checksum != checksum {
			return fmt.Errorf("session: peer %s resent checksum for frame %d with different value", peer, f)
		}
		return nil
	}

	*slot = FrameHashRemote{Frame: f, Checksum: checksum, Set: true}
	return nil
}

func (s *Session) requestRollback(f Frame) {
	if !s.rollback.IsRollback || f < s.rollback.RollbackFrame {
		s.rollback = RollbackStatus{IsRollback: true, RollbackFrame: f}
	}
}

func (s *Session) recomputeConfirmedFrame() {
	// Local input for the current frame is always known the instant we
	// gather it, so the local bound is simply the last frame simulated.
	bound := s.currentFrame - 1

	for _, p := range s.peers {
		if up := s.confirmedUpTo[p]; up < bound {
			bound = up
		}
	}

	s.confirmedFrame = bound

	// Retroactively flip the Confirmed bit on any local hash entries that
	// have now fallen within the confirmed horizon.
	for idx := 0; idx < s.localHashes.Cap(); idx++ {
		e := s.localHashes.Slot(idx)
		if e.Set && !e.Confirmed && e.Frame <= s.confirmedFrame {
			e.Confirmed = true
		}
	}
}

// gatherInputs builds the per-peer input map the adapter steps with for
// frame f, using confirmed data where available and otherwise predicting
// "keep doing what you were last confirmed doing" (the same approximation
// netplay.Game.HandleLocalInput makes). Predictions are written back into
// the remote ring so a later authoritative arrival can be compared
// against what was actually predicted.
func (s *Session) gatherInputs(f Frame) map[ids.PlayerId]protocol.Input {
	inputs := make(map[ids.PlayerId]protocol.Input, len(s.peers)+1)

	if local := s.localInputs.Slot(int(f)); local.Set && local.Frame == f {
		inputs[s.local] = local.Input
	}

	for _, p := range s.peers {
		ring := s.remoteInputs[p]
		slot := ring.Slot(int(f))

		if slot.Set && slot.Frame == f {
			inputs[p] = slot.Input
			continue
		}

		predicted := protocol.Input{Buttons: s.lastRemote[p]}
		*slot = InputEntry{Frame: f, Input: predicted, Status: StatusPredicted, Set: true}
		inputs[p] = predicted
	}

	return inputs
}

func (s *Session) recordLocalInput(f Frame, in protocol.Input) {
	slot := s.localInputs.Slot(int(f))
	*slot = InputEntry{Frame: f, Input: in, Status: StatusConfirmed, Set: true}
}

// Tick advances the session by exactly one frame. Draining transport is
// assumed to have already happened via HandleRemoteInput calls made
// before Tick; rollback resolution, the desync sweep, local input
// recording, stepping, and the outbound sideband all happen here.
func (s *Session) Tick(localButtons uint16) (TickResult, error) {
	if s.currentFrame-s.confirmedFrame >= Frame(s.window) {
		return TickResult{Stalled: true}, nil
	}

	if s.rollback.IsRollback {
		if err := s.resimulate(s.rollback.RollbackFrame); err != nil {
			return TickResult{}, err
		}
		s.rollback = RollbackStatus{}
	}

	if err := s.desyncSweep(); err != nil {
		return TickResult{}, err
	}

	in := protocol.Input{Buttons: localButtons}
	s.recordLocalInput(s.currentFrame, in)

	inputs := s.gatherInputs(s.currentFrame)

	if !s.gate.Gated(s.currentFrame) {
		s.adapter.Step(inputs)
	}

	producedFrame := s.currentFrame + 1
	if err := s.saveAndRecord(producedFrame); err != nil {
		return TickResult{}, err
	}

	s.currentFrame = producedFrame
	s.currentSessionFrame = producedFrame
	s.recomputeConfirmedFrame()

	out := in
	if f, checksum, ok := s.pickSideband(); ok {
		out.LastConfirmedFrame = f
		out.LastConfirmedHash = checksum
	} else {
		out.LastConfirmedFrame, out.LastConfirmedHash = protocol.NoSideband()
	}

	if err := s.desyncSweep(); err != nil {
		return TickResult{}, err
	}

	return TickResult{Output: out}, nil
}

// saveAndRecord persists the adapter's current state (after stepping) as
// the savestate for producedFrame and records its checksum in the local
// hash history.
func (s *Session) saveAndRecord(producedFrame Frame) error {
	data, err := s.adapter.SaveState()
	if err != nil {
		return fmt.Errorf("session: save state at frame %d: %w", producedFrame, err)
	}

	*s.savestates.Slot(int(producedFrame)) = savestateEntry{Frame: producedFrame, Data: data, Set: true}

	checksum := protocol.Checksum(data)
	hashSlot := s.localHashes.Slot(int(producedFrame))

	if hashSlot.Set && hashSlot.Validated && hashSlot.Frame == producedFrame {
		// Validation monotonicity: never overwrite a validated checksum.
		return nil
	}

	*hashSlot = FrameHashLocal{
		Frame:     producedFrame,
		Checksum:  checksum,
		Confirmed: producedFrame <= s.confirmedFrame,
		Sent:      false,
		Validated: false,
		Set:       true,
	}

	return nil
}

// pickSideband implements step 2 of the desync protocol: find the
// lowest-framed confirmed-but-unsent validatable local hash entry to
// piggyback on the outbound input.
func (s *Session) pickSideband() (Frame, uint16, bool) {
	var best *FrameHashLocal

	for idx := 0; idx < s.localHashes.Cap(); idx++ {
		e := s.localHashes.Slot(idx)
		if !e.Set || !e.Confirmed || e.Sent {
			continue
		}
		if !s.Validatable(e.Frame) {
			continue
		}
		if best == nil || e.Frame < best.Frame {
			best = e
		}
	}

	if best == nil {
		return 0, 0, false
	}

	best.Sent = true
	return best.Frame, best.Checksum, true
}

// desyncSweep implements step 4 of the desync protocol: compare every
// not-yet-validated remote-reported checksum against our own local
// history, for frames that have become validatable.
func (s *Session) desyncSweep() error {
	for _, peer := range s.peers {
		ring := s.remoteHashes[peer]

		for idx := 0; idx < ring.Cap(); idx++ {
			rx := ring.Slot(idx)
			if !rx.Set || rx.Validated {
				continue
			}

			local := s.localHashes.Slot(int(rx.Frame))
			if !local.Set || local.Frame != rx.Frame || !local.Confirmed || local.Validated {
				continue
			}
			if !s.Validatable(local.Frame) {
				continue
			}

			if local.Checksum != rx.Checksum {
				return &DesyncError{
					Frame:          rx.Frame,
					LocalChecksum:  local.Checksum,
					RemoteChecksum: rx.Checksum,
					Peer:           peer,
				}
			}

			local.Validated = true
			rx.Validated = true
		}
	}

	return nil
}

// resimulate implements the rollback: restore the savestate immediately
// preceding rollbackFrame, then replay every frame from rollbackFrame up
// to currentFrame (exclusive of currentFrame's own not-yet-produced
// state) using the now-available confirmed inputs, speculating beyond
// that as usual.
func (s *Session) resimulate(rollbackFrame Frame) error {
	base := s.savestates.Slot(int(rollbackFrame))
	if !base.Set || base.Frame != rollbackFrame {
		return fmt.Errorf("session: no savestate for rollback frame %d", rollbackFrame)
	}

	if err := s.adapter.LoadState(base.Data); err != nil {
		return fmt.Errorf("session: restore savestate at frame %d: %w", rollbackFrame, err)
	}

	for f := rollbackFrame; f < s.currentFrame; f++ {
		inputs := s.gatherInputs(f)

		if !s.gate.Gated(f) {
			s.adapter.Step(inputs)
		}

		if err := s.saveAndRecord(f + 1); err != nil {
			return err
		}
	}

	return nil
}

// Peers returns the configured remote peer set, sorted for deterministic
// iteration in logs and tests.
func (s *Session) Peers() []ids.PlayerId {
	out := append([]ids.PlayerId(nil), s.peers...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
