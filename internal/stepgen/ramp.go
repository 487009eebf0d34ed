package stepgen

import (
	"errors"

	"github.com/cjeanneret/stepramp/internal/debug"
)

// errEmptyPlan is logged when Starting finds no phase with a nonzero
// distance. RequestMove never produces such a plan.
var errEmptyPlan = errors.New("stepgen: move armed with an empty profile")

// Ramp runs moves along a trapezoidal or triangular speed profile.
//
// distAccel, distRun and distTotal are cumulative pulse counts at which the
// profile leaves Accel, Run and Decel respectively:
//
//	0 <= distAccel <= distRun <= distTotal
//
// distAccel == distRun means there is no cruise segment.
type Ramp struct {
	axis
	accel     uint32 // configured
	moveAccel uint32 // latched for the running move
	phase     Phase

	distAccel uint32
	distRun   uint32
	distTotal uint32

	stepInterval         float64 // continuous, carries the ramp between steps
	stepIntervalWhole    uint32  // rounded, used for timing
	constMult            float64
	minSpeedStepInterval float64
	maxSpeedStepInterval uint32
}

// NewRamp creates an accelerating engine. The output stage starts disabled.
func NewRamp(drv Driver, clk Clock, s Settings) *Ramp {
	e := &Ramp{
		axis:  newAxis(drv, clk, s),
		accel: s.Accel,
	}
	drv.SetDirection(true)
	e.Disable()
	return e
}

// RequestMove plans and arms a move to target. It returns false when a
// move is already running, the clamped target is the current position, or
// the maximum speed is not positive.
func (e *Ramp) RequestMove(target int32) bool {
	if e.phase != Stopped {
		return false
	}
	dist, ok := e.prepare(target)
	if !ok {
		return false
	}

	e.moveAccel = e.accel
	e.distAccel, e.distRun, e.distTotal = 0, 0, dist

	if e.moveAccel == 0 {
		e.distRun = dist
		e.stepIntervalWhole = fixedInterval(e.maxSpeed)
		e.stepInterval = float64(e.stepIntervalWhole)
		debug.Plan("constant", e.distAccel, e.distRun, e.distTotal)
		e.phase = Starting
		return true
	}

	maxAccelDist := maxAccelDistance(e.maxSpeed, e.moveAccel)
	profile := "trapezoidal"
	if maxAccelDist >= dist/2 {
		// An odd distance gives the extra pulse to the decel segment.
		e.distAccel = dist / 2
		e.distRun = e.distAccel
		profile = "triangular"
	} else {
		e.distAccel = maxAccelDist
		e.distRun = dist - maxAccelDist
	}

	e.constMult = rampConstant(e.moveAccel)
	e.minSpeedStepInterval = minSpeedInterval(e.moveAccel)
	e.maxSpeedStepInterval = OneSecond / uint32(e.maxSpeed)
	e.setInterval(e.minSpeedStepInterval)
	if e.distAccel == 0 && e.distRun != 0 {
		// Max speed is reached within the first pulse.
		e.setInterval(float64(e.maxSpeedStepInterval))
	}

	debug.Plan(profile, e.distAccel, e.distRun, e.distTotal)
	e.phase = Starting
	return true
}

// Advance emits at most one pulse, steps the profile, and returns the
// current phase. Call it repeatedly and often.
func (e *Ramp) Advance() Phase {
	if e.phase == Starting {
		e.startTiming()
		switch {
		case e.distAccel != 0:
			e.phase = Accel
		case e.distRun != 0:
			e.phase = Run
		case e.distTotal != 0:
			e.phase = Decel
		default:
			debug.Error(errEmptyPlan)
			e.Stop()
		}
		return e.phase
	}
	if !e.phase.Moving() || !e.pulseDue(e.stepIntervalWhole) {
		return e.phase
	}

	e.distMoved++
	switch e.phase {
	case Run:
		if e.distMoved == e.distRun {
			if e.distTotal == e.distRun {
				e.Stop()
			} else {
				e.phase = Decel
				e.decel()
			}
		}
	case Accel:
		if e.distMoved == e.distAccel {
			if e.distRun != e.distAccel {
				e.phase = Run
				// Snap to the exact cruise interval so ramp error does not
				// carry into the constant speed segment.
				e.stepInterval = float64(e.maxSpeedStepInterval)
				e.stepIntervalWhole = e.maxSpeedStepInterval
			} else {
				e.phase = Decel
				e.decel()
			}
		} else {
			e.setInterval(accelStep(e.stepInterval, e.constMult))
		}
	case Decel:
		if e.distMoved == e.distTotal {
			e.Stop()
		} else {
			e.decel()
		}
	}
	return e.phase
}

// decel applies one deceleration step. The interval never grows past the
// interval of the first pulse from rest.
func (e *Ramp) decel() {
	t := decelStep(e.stepInterval, e.constMult)
	if t > e.minSpeedStepInterval {
		t = e.minSpeedStepInterval
	}
	e.setInterval(t)
}

func (e *Ramp) setInterval(t float64) {
	e.stepInterval = t
	e.stepIntervalWhole = roundInterval(t)
}

// DecelerateNow abandons the rest of the plan and ramps down to a stop as
// quickly as the configured acceleration allows, never passing the
// original target. A move that has not emitted its first pulse is simply
// stopped, as is any move without acceleration.
func (e *Ramp) DecelerateNow() {
	switch {
	case e.phase == Stopped:
		return
	case e.phase == Starting, e.moveAccel == 0:
		e.Stop()
		return
	}

	remaining := e.distTotal - e.distMoved
	d := decelDistance(e.stepInterval, e.moveAccel)
	if d > remaining {
		d = remaining
	}
	e.distAccel = 0
	e.distRun = 0
	e.distTotal = e.distMoved + d
	e.phase = Decel
}

// Stop halts the motor immediately and records the position reached.
func (e *Ramp) Stop() {
	e.updatePos()
	e.distAccel, e.distRun, e.distTotal = 0, 0, 0
	e.phase = Stopped
}

// Disable stops the motor and turns off the driver.
func (e *Ramp) Disable() {
	e.Stop()
	e.drv.Disable()
	e.enabled = false
}

// Accel returns the configured acceleration in pulses per second².
func (e *Ramp) Accel() uint32 { return e.accel }

// SetAccel sets the acceleration. It takes effect on the next move.
func (e *Ramp) SetAccel(accel uint32) { e.accel = accel }

// Phase returns the current phase.
func (e *Ramp) Phase() Phase { return e.phase }

// Position returns the current position, including pulses emitted so far
// in a running move.
func (e *Ramp) Position() int32 { return e.livePos() }

// SetPosition redefines the current position. Ignored while moving.
func (e *Ramp) SetPosition(pos int32) bool {
	if e.phase != Stopped {
		return false
	}
	e.pos = pos
	return true
}

// DistanceRemaining returns the pulses left in the current plan.
func (e *Ramp) DistanceRemaining() uint32 {
	if e.phase == Stopped {
		return 0
	}
	return e.distTotal - e.distMoved
}

// CurrentSpeed returns the instantaneous speed in pulses per second, or 0
// when not moving.
func (e *Ramp) CurrentSpeed() uint32 {
	if !e.phase.Moving() || e.stepIntervalWhole == 0 {
		return 0
	}
	return OneSecond / e.stepIntervalWhole
}
