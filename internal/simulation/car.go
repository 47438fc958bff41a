package simulation

import "github.com/kshaa/racer/internal/ids"

// tirePosition identifies one of a car's four fixed tire slots. Sorting by
// (IsFront, IsRight) gives the stable composite key the determinism
// requirement demands whenever tires are iterated independently of their
// parent car.
type tirePosition struct {
	IsFront bool
	IsRight bool
}

var tireLayout = [4]tirePosition{
	{IsFront: true, IsRight: false},  // front-left
	{IsFront: true, IsRight: true},   // front-right
	{IsFront: false, IsRight: false}, // rear-left
	{IsFront: false, IsRight: true},  // rear-right
}

// tire holds the per-wheel state touched by the step function: steering
// angle (front tires only) and the simple load/grip scalar used by the
// friction model.
type tire struct {
	SteerAngle float64
	Load       float64
}

// car is one identity-bearing slot in the fixed entity pool. Slot is the
// pool index the car was allocated at and never changes; PlayerID is
// rebound on join/reset but the slot itself is never reallocated at
// runtime, keeping entity order index-stable as required for determinism.
type car struct {
	Slot     int
	PlayerID ids.PlayerId
	Active   bool

	X, Y            float64
	VX, VY          float64
	Heading         float64 // radians
	AngularVelocity float64
	Speed           float64

	Tires [4]tire
}

func newCar(slot int) *car {
	return &car{Slot: slot}
}

func (c *car) reset() {
	pid := c.PlayerID
	active := c.Active
	slot := c.Slot
	*c = car{Slot: slot, PlayerID: pid, Active: active}
}
