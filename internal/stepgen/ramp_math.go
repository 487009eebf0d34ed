package stepgen

import "math"

// fixedInterval returns OneSecond/speed rounded to the nearest tick.
// speed must be positive.
func fixedInterval(speed int32) uint32 {
	s := uint32(speed)
	interval := OneSecond / s
	if OneSecond%s >= s/2 {
		interval++
	}
	return interval
}

// maxAccelDistance is the number of pulses needed to reach speed from rest
// at accel: v²/2a.
func maxAccelDistance(speed int32, accel uint32) uint32 {
	v := float64(speed)
	return clampPulses(v * v / (2 * float64(accel)))
}

// decelDistance is the number of pulses needed to come to rest from the
// speed implied by interval. At least one pulse is always left so a ramp
// requested between two pulses has somewhere to end.
func decelDistance(interval float64, accel uint32) uint32 {
	v := float64(OneSecond) / interval
	d := clampPulses(v*v/(2*float64(accel)) + 0.5)
	if d == 0 {
		return 1
	}
	return d
}

// rampConstant is Eiderman's multiplier a/F² with F the tick rate.
func rampConstant(accel uint32) float64 {
	return float64(accel) / float64(OneSecond) / float64(OneSecond)
}

// minSpeedInterval is the first interval of a ramp from rest:
// F/sqrt(v0² + 2a) with v0 = 0.
func minSpeedInterval(accel uint32) float64 {
	return float64(OneSecond) / math.Sqrt(2*float64(accel))
}

// accelStep shortens interval t by one step of the ramp.
func accelStep(t, c float64) float64 {
	return t * (1 - c*t*t)
}

// decelStep lengthens interval t by one step of the ramp.
func decelStep(t, c float64) float64 {
	return t * (1 + c*t*t)
}

// roundInterval rounds a continuous interval to whole ticks.
func roundInterval(t float64) uint32 {
	if t >= math.MaxUint32 {
		return math.MaxUint32
	}
	if t <= 0 {
		return 0
	}
	return uint32(t + 0.5)
}

func clampPulses(f float64) uint32 {
	if f >= math.MaxUint32 {
		return math.MaxUint32
	}
	if f <= 0 {
		return 0
	}
	return uint32(f)
}
