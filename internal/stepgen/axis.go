package stepgen

import "github.com/cjeanneret/stepramp/internal/debug"

// axis holds the state and the step-execution contract shared by both
// engines: limits, position bookkeeping, direction latching and the
// drift-free pulse gate.
type axis struct {
	drv   Driver
	clock Clock

	forwardLimit int32
	reverseLimit int32
	maxSpeed     int32
	enabled      bool

	pos          int32
	forward      bool   // latched at move request, read-only until stop
	distMoved    uint32 // pulses emitted in the current move
	lastStepTime uint32
}

func newAxis(drv Driver, clk Clock, s Settings) axis {
	return axis{
		drv:          drv,
		clock:        clk,
		forwardLimit: s.ForwardLimit,
		reverseLimit: s.ReverseLimit,
		maxSpeed:     s.MaxSpeed,
		forward:      true,
	}
}

// prepare validates a move and arms the output stage. It returns the
// number of pulses to the clamped target. On failure nothing is touched.
func (a *axis) prepare(target int32) (uint32, bool) {
	target = constrain(target, a.reverseLimit, a.forwardLimit)
	if target == a.pos || a.maxSpeed <= 0 {
		debug.Verbose("Move rejected: target=%d pos=%d maxSpeed=%d", target, a.pos, a.maxSpeed)
		return 0, false
	}
	if !a.enabled {
		a.Enable()
	}
	a.forward = target > a.pos
	a.drv.SetDirection(a.forward)
	a.distMoved = 0
	return absDiff(target, a.pos), true
}

// startTiming latches the reference time for the first pulse.
func (a *axis) startTiming() {
	a.lastStepTime = a.clock.Now()
}

// pulseDue emits a pulse if interval ticks have elapsed since the last
// scheduled pulse. lastStepTime advances by exactly interval so polling
// jitter never accumulates.
func (a *axis) pulseDue(interval uint32) bool {
	if a.clock.Now()-a.lastStepTime < interval {
		return false
	}
	a.lastStepTime += interval
	a.drv.EmitPulse()
	return true
}

// updatePos folds distMoved into pos. Safe to call repeatedly.
func (a *axis) updatePos() {
	a.pos = a.livePos()
	a.distMoved = 0
}

func (a *axis) livePos() int32 {
	if a.forward {
		return int32(int64(a.pos) + int64(a.distMoved))
	}
	return int32(int64(a.pos) - int64(a.distMoved))
}

// Enable turns on the motor driver.
func (a *axis) Enable() {
	a.drv.Enable()
	a.enabled = true
}

// IsEnabled reports whether the output stage is enabled.
func (a *axis) IsEnabled() bool {
	return a.enabled
}

// MaxSpeed returns the configured maximum speed in pulses per second.
func (a *axis) MaxSpeed() int32 { return a.maxSpeed }

// SetMaxSpeed sets the maximum speed. It takes effect on the next move.
func (a *axis) SetMaxSpeed(speed int32) { a.maxSpeed = speed }

// ForwardLimit returns the highest reachable position.
func (a *axis) ForwardLimit() int32 { return a.forwardLimit }

// SetForwardLimit sets the highest reachable position.
func (a *axis) SetForwardLimit(limit int32) { a.forwardLimit = limit }

// ReverseLimit returns the lowest reachable position.
func (a *axis) ReverseLimit() int32 { return a.reverseLimit }

// SetReverseLimit sets the lowest reachable position.
func (a *axis) SetReverseLimit(limit int32) { a.reverseLimit = limit }

func constrain(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absDiff(a, b int32) uint32 {
	if a > b {
		return uint32(int64(a) - int64(b))
	}
	return uint32(int64(b) - int64(a))
}
