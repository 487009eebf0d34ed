package stepgen

// NoAccel runs every move at the configured maximum speed.
type NoAccel struct {
	axis
	phase     Phase
	distTotal uint32
	interval  uint32
}

// NewNoAccel creates a constant speed engine. The output stage starts disabled.
func NewNoAccel(drv Driver, clk Clock, s Settings) *NoAccel {
	e := &NoAccel{axis: newAxis(drv, clk, s)}
	drv.SetDirection(true)
	e.Disable()
	return e
}

// RequestMove arms a move to target. It returns false when a move is
// already running, the clamped target is the current position, or the
// maximum speed is not positive.
func (e *NoAccel) RequestMove(target int32) bool {
	if e.phase != Stopped {
		return false
	}
	dist, ok := e.prepare(target)
	if !ok {
		return false
	}
	e.distTotal = dist
	e.interval = fixedInterval(e.maxSpeed)
	e.phase = Starting
	return true
}

// Advance emits at most one pulse and returns the current phase.
// Call it repeatedly and often.
func (e *NoAccel) Advance() Phase {
	switch e.phase {
	case Run:
		if e.pulseDue(e.interval) {
			e.distMoved++
			if e.distMoved == e.distTotal {
				e.Stop()
			}
		}
	case Starting:
		e.startTiming()
		e.phase = Run
	}
	return e.phase
}

// Stop halts the motor immediately and records the position reached.
func (e *NoAccel) Stop() {
	e.updatePos()
	e.distTotal = 0
	e.phase = Stopped
}

// Disable stops the motor and turns off the driver.
func (e *NoAccel) Disable() {
	e.Stop()
	e.drv.Disable()
	e.enabled = false
}

// Phase returns the current phase.
func (e *NoAccel) Phase() Phase { return e.phase }

// Position returns the current position, including pulses emitted so far
// in a running move.
func (e *NoAccel) Position() int32 { return e.livePos() }

// SetPosition redefines the current position. Ignored while moving.
func (e *NoAccel) SetPosition(pos int32) bool {
	if e.phase != Stopped {
		return false
	}
	e.pos = pos
	return true
}

// DistanceRemaining returns the pulses left in the current move.
func (e *NoAccel) DistanceRemaining() uint32 {
	if e.phase == Stopped {
		return 0
	}
	return e.distTotal - e.distMoved
}

// CurrentSpeed returns the speed in pulses per second, or 0 when not moving.
func (e *NoAccel) CurrentSpeed() uint32 {
	if !e.phase.Moving() || e.interval == 0 {
		return 0
	}
	return OneSecond / e.interval
}
