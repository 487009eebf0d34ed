// Package stepgen generates step/direction pulse trains for a single
// stepper axis. Two engines are provided: NoAccel runs every move at a
// fixed interval, Ramp runs trapezoidal or triangular speed profiles using
// Eiderman's linear ramping approximation ("Real Time Stepper Motor Linear
// Ramping Just by Addition and Multiplication").
//
// Engines are polled: the caller invokes Advance in a tight loop and the
// engine decides on each call whether a pulse is due. Advance never blocks
// and never allocates.
package stepgen

import "math"

// OneSecond is the number of clock ticks per second. Ticks are microseconds.
const OneSecond uint32 = 1000000

// Defaults applied by DefaultSettings.
const (
	DefaultMaxSpeed     int32  = 1600 // pulses per second
	DefaultAccel        uint32 = 1600 // pulses per second²
	DefaultForwardLimit int32  = math.MaxInt32
	DefaultReverseLimit int32  = math.MinInt32
)

// Phase is the current segment of the active motion profile.
type Phase uint8

const (
	Stopped Phase = iota
	Starting
	Accel
	Run
	Decel
)

func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Accel:
		return "accel"
	case Run:
		return "run"
	case Decel:
		return "decel"
	default:
		return "unknown"
	}
}

// Moving reports whether pulses are being emitted in this phase.
func (p Phase) Moving() bool {
	return p > Starting
}

// Clock is a free-running tick counter. It wraps on overflow; engines only
// ever compare unsigned differences.
type Clock interface {
	Now() uint32
}

// Driver is the step/dir output stage of a stepper driver (A4988, DRV8825...).
type Driver interface {
	// EmitPulse produces one step pulse of the driver's minimum width.
	EmitPulse()
	// SetDirection asserts the DIR line. Called once per move, before any pulse.
	SetDirection(forward bool)
	Enable()
	Disable()
}

// Settings holds the per-axis configuration read by RequestMove.
type Settings struct {
	MaxSpeed     int32  // pulses per second; <= 0 disables motion
	Accel        uint32 // pulses per second²; 0 selects a constant speed profile
	ForwardLimit int32
	ReverseLimit int32
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MaxSpeed:     DefaultMaxSpeed,
		Accel:        DefaultAccel,
		ForwardLimit: DefaultForwardLimit,
		ReverseLimit: DefaultReverseLimit,
	}
}

// Engine is the surface shared by NoAccel and Ramp.
type Engine interface {
	RequestMove(target int32) bool
	Advance() Phase
	Stop()
	Phase() Phase
	Position() int32
	DistanceRemaining() uint32
	CurrentSpeed() uint32
	Enable()
	Disable()
	IsEnabled() bool
}

// Decelerator is implemented by engines that can ramp down mid-move.
type Decelerator interface {
	DecelerateNow()
}

var (
	_ Engine      = (*NoAccel)(nil)
	_ Engine      = (*Ramp)(nil)
	_ Decelerator = (*Ramp)(nil)
)
