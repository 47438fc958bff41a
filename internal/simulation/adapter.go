// Package simulation is the deterministic simulation adapter: it exposes
// the step function and savestate codec the session core drives, and owns
// the fixed, index-stable pool of identity-bearing car entities.
//
// Rendering, asset loading and physics tuning are explicitly out of scope;
// this package implements only the minimal rigid-body model needed to make
// the rollback and desync machinery exercise a real, bit-reproducible step
// function.
package simulation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/kshaa/racer/internal/binario"
	"github.com/kshaa/racer/internal/ids"
	"github.com/kshaa/racer/internal/protocol"
)

// MaxPlayers bounds the fixed entity pool size. Entities are pre-reserved
// at NewAdapter time and drawn from by index; nothing is allocated as
// players join mid-match.
const MaxPlayers = 8

// Adapter is a fixed pool of MaxPlayers car slots advanced one tick at a
// time by Step. It is the concrete type behind the Session Core's
// simulation dependency.
type Adapter struct {
	cars [MaxPlayers]*car
}

func NewAdapter() *Adapter {
	a := &Adapter{}
	for i := range a.cars {
		a.cars[i] = newCar(i)
	}
	return a
}

// Spawn claims the first free slot for playerID, or returns an error if
// the pool is exhausted. Spawning never reallocates or reorders existing
// slots.
func (a *Adapter) Spawn(playerID ids.PlayerId, startX, startY float64) error {
	for _, c := range a.cars {
		if c.Active && c.PlayerID == playerID {
			return nil // already spawned, idempotent
		}
	}

	for _, c := range a.cars {
		if !c.Active {
			c.reset()
			c.PlayerID = playerID
			c.Active = true
			c.X, c.Y = startX, startY
			return nil
		}
	}

	return fmt.Errorf("simulation: no free slot for player %s (pool size %d)", playerID, MaxPlayers)
}

// Despawn frees playerID's slot, if any.
func (a *Adapter) Despawn(playerID ids.PlayerId) {
	for _, c := range a.cars {
		if c.Active && c.PlayerID == playerID {
			c.reset()
			c.Active = false
			c.PlayerID = ids.PlayerId{}
		}
	}
}

// Step advances every active car by one tick using the input supplied for
// its player (the zero Input, i.e. no buttons pressed, if absent). Entities
// are walked in fixed slot order, which is already index-stable; the
// (player_id, is_front, is_right) key from the determinism requirement is
// exposed separately via SortedEntities for callers (e.g. collision
// broad-phase) that need an explicit stable ordering independent of pool
// layout.
func (a *Adapter) Step(inputs map[ids.PlayerId]protocol.Input) {
	for _, c := range a.cars {
		if !c.Active {
			continue
		}

		in := inputs[c.PlayerID]
		stepCar(c, in.Accelerate(), in.Reverse(), in.Brake(), in.SteerLeft(), in.SteerRight())
	}
}

// EntityView is a read-only, sortable projection of one tire belonging to
// one car, keyed by the composite (player_id, is_front, is_right) the
// determinism requirement mandates for any traversal sensitive to order.
type EntityView struct {
	PlayerID ids.PlayerId
	IsFront  bool
	IsRight  bool
	Slot     int
	TireIdx  int
}

// SortedEntities returns every tire of every active car, sorted by the
// stable composite key (player_id, is_front, is_right). Any consumer that
// must iterate entities before feeding physics (e.g. collision detection)
// should use this instead of ranging over a map or the raw pool.
func (a *Adapter) SortedEntities() []EntityView {
	views := make([]EntityView, 0, MaxPlayers*len(tireLayout))

	for _, c := range a.cars {
		if !c.Active {
			continue
		}

		for i, pos := range tireLayout {
			views = append(views, EntityView{
				PlayerID: c.PlayerID,
				IsFront:  pos.IsFront,
				IsRight:  pos.IsRight,
				Slot:     c.Slot,
				TireIdx:  i,
			})
		}
	}

	sort.Slice(views, func(i, j int) bool {
		vi, vj := views[i], views[j]
		if vi.PlayerID != vj.PlayerID {
			return vi.PlayerID.String() < vj.PlayerID.String()
		}
		if vi.IsFront != vj.IsFront {
			return vi.IsFront && !vj.IsFront
		}
		return !vi.IsRight && vj.IsRight
	})

	return views
}

// CarState is the public, read-only snapshot of one active car, used by
// the external collaborator that turns simulation state into on-screen
// transforms. It carries no behavior of its own.
type CarState struct {
	PlayerID ids.PlayerId
	X, Y     float64
	Heading  float64
	Speed    float64
}

// Snapshot returns the current state of every active car, in fixed slot
// order.
func (a *Adapter) Snapshot() []CarState {
	out := make([]CarState, 0, MaxPlayers)
	for _, c := range a.cars {
		if c.Active {
			out = append(out, CarState{PlayerID: c.PlayerID, X: c.X, Y: c.Y, Heading: c.Heading, Speed: c.Speed})
		}
	}
	return out
}

// SaveState serializes the full simulation state: every pool slot,
// active or not, in fixed order, so that restoring is a pure bulk
// field-wise copy with no branching on which players were present.
func (a *Adapter) SaveState() ([]byte, error) {
	var buf bytes.Buffer
	w := binario.NewWriter(&buf, binary.LittleEndian)

	for _, c := range a.cars {
		if err := writeCar(w, c); err != nil {
			return nil, fmt.Errorf("simulation: save slot %d: %w", c.Slot, err)
		}
	}

	return buf.Bytes(), nil
}

// LoadState restores every pool slot from a blob produced by SaveState.
// Slot identity (index) is preserved; only field contents are
// overwritten.
func (a *Adapter) LoadState(data []byte) error {
	r := binario.NewReader(bytes.NewReader(data), binary.LittleEndian)

	for _, c := range a.cars {
		if err := readCar(r, c); err != nil {
			return fmt.Errorf("simulation: load slot %d: %w", c.Slot, err)
		}
	}

	return nil
}

// Checksum returns the Fletcher-16 checksum of the current savestate, or
// an error if serialization fails.
func (a *Adapter) Checksum() (uint16, error) {
	data, err := a.SaveState()
	if err != nil {
		return 0, err
	}
	return protocol.Checksum(data), nil
}

func writeCar(w *binario.Writer, c *car) error {
	idErrs := make([]error, len(c.PlayerID))
	for i, b := range c.PlayerID {
		idErrs[i] = w.WriteUint8(b)
	}

	tireErrs := make([]error, 0, len(c.Tires)*2)
	for _, t := range c.Tires {
		tireErrs = append(tireErrs, w.WriteFloat64(t.SteerAngle), w.WriteFloat64(t.Load))
	}

	return errors.Join(errors.Join(idErrs...),
		w.WriteBool(c.Active),
		w.WriteFloat64(c.X),
		w.WriteFloat64(c.Y),
		w.WriteFloat64(c.VX),
		w.WriteFloat64(c.VY),
		w.WriteFloat64(c.Heading),
		w.WriteFloat64(c.AngularVelocity),
		w.WriteFloat64(c.Speed),
		errors.Join(tireErrs...),
	)
}

func readCar(r *binario.Reader, c *car) error {
	idErrs := make([]error, len(c.PlayerID))
	for i := range c.PlayerID {
		idErrs[i] = r.ReadUint8To(&c.PlayerID[i])
	}

	tireErrs := make([]error, 0, len(c.Tires)*2)
	for i := range c.Tires {
		tireErrs = append(tireErrs,
			r.ReadFloat64To(&c.Tires[i].SteerAngle),
			r.ReadFloat64To(&c.Tires[i].Load),
		)
	}

	return errors.Join(errors.Join(idErrs...),
		r.ReadBoolTo(&c.Active),
		r.ReadFloat64To(&c.X),
		r.ReadFloat64To(&c.Y),
		r.ReadFloat64To(&c.VX),
		r.ReadFloat64To(&c.VY),
		r.ReadFloat64To(&c.Heading),
		r.ReadFloat64To(&c.AngularVelocity),
		r.ReadFloat64To(&c.Speed),
		errors.Join(tireErrs...),
	)
}
