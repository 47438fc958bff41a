package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepCarAccelerateIncreasesSpeed(t *testing.T) {
	c := newCar(0)
	c.Active = true

	stepCar(c, true, false, false, false, false)
	assert.Greater(t, c.Speed, 0.0)
}

func TestStepCarBrakeDecelerates(t *testing.T) {
	c := newCar(0)
	c.Active = true
	c.Speed = 10

	stepCar(c, false, false, true, false, false)
	assert.Less(t, c.Speed, 10.0)
}

func TestStepCarInactiveIsNoOp(t *testing.T) {
	c := newCar(0)
	c.Active = false

	stepCar(c, true, false, false, false, false)
	assert.Equal(t, 0.0, c.Speed)
}

func TestStepCarSpeedClampedToMax(t *testing.T) {
	c := newCar(0)
	c.Active = true

	for i := 0; i < 10000; i++ {
		stepCar(c, true, false, false, false, false)
	}

	assert.LessOrEqual(t, c.Speed, maxSpeed)
}

func TestResetPreservesSlotAndIdentity(t *testing.T) {
	c := newCar(2)
	c.Active = true
	c.X, c.Y = 5, 6
	c.Speed = 20

	c.reset()

	assert.Equal(t, 2, c.Slot)
	assert.True(t, c.Active)
	assert.Equal(t, 0.0, c.X)
	assert.Equal(t, 0.0, c.Speed)
}
