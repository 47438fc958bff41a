package simulation

import "math"

// Tuning constants. The concrete physics feel is out of scope; these exist
// only so the step function is a well-defined, deterministic pure function
// of (prior state, inputs) for the rollback machinery to exercise.
const (
	dt                   = 1.0 / 60.0
	accelForce           = 18.0 // units/s^2
	reverseForce         = 10.0
	brakeDecel           = 30.0
	rollingDrag          = 2.0
	maxSpeed             = 40.0
	maxReverseSpeed      = -12.0
	steerRatePerSpeed    = 2.2 // rad/s at maxSpeed, scaled by current speed
	maxSteerAngle        = 0.6
	steerAngleReturnRate = 3.0
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stepCar advances one car by one tick given its control inputs. It is a
// pure function of the car's prior fields and the five input booleans;
// no global or wall-clock state is read.
func stepCar(c *car, accelerate, reverse, brake, steerLeft, steerRight bool) {
	if !c.Active {
		return
	}

	switch {
	case brake:
		if c.Speed > 0 {
			c.Speed = clamp(c.Speed-brakeDecel*dt, 0, maxSpeed)
		} else if c.Speed < 0 {
			c.Speed = clamp(c.Speed+brakeDecel*dt, maxReverseSpeed, 0)
		}
	case accelerate:
		c.Speed = clamp(c.Speed+accelForce*dt, maxReverseSpeed, maxSpeed)
	case reverse:
		c.Speed = clamp(c.Speed-reverseForce*dt, maxReverseSpeed, maxSpeed)
	default:
		if c.Speed > 0 {
			c.Speed = clamp(c.Speed-rollingDrag*dt, 0, maxSpeed)
		} else if c.Speed < 0 {
			c.Speed = clamp(c.Speed+rollingDrag*dt, maxReverseSpeed, 0)
		}
	}

	steerInput := 0.0
	if steerLeft && !steerRight {
		steerInput = -1.0
	} else if steerRight && !steerLeft {
		steerInput = 1.0
	}

	targetAngle := steerInput * maxSteerAngle
	frontAngle := &c.Tires[0].SteerAngle // front-left and front-right steer together

	if targetAngle > *frontAngle {
		*frontAngle = math.Min(*frontAngle+steerAngleReturnRate*dt, targetAngle)
	} else if targetAngle < *frontAngle {
		*frontAngle = math.Max(*frontAngle-steerAngleReturnRate*dt, targetAngle)
	}
	c.Tires[1].SteerAngle = *frontAngle

	turnRate := *frontAngle * steerRatePerSpeed * (c.Speed / maxSpeed)
	c.AngularVelocity = turnRate
	c.Heading += c.AngularVelocity * dt

	c.VX = math.Cos(c.Heading) * c.Speed
	c.VY = math.Sin(c.Heading) * c.Speed
	c.X += c.VX * dt
	c.Y += c.VY * dt

	for i := range c.Tires {
		c.Tires[i].Load = clamp(math.Abs(c.Speed)/maxSpeed, 0, 1)
	}
}
