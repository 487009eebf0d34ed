package stepgen

import "testing"

// fakeClock is a manually advanced tick counter.
type fakeClock struct {
	now uint32
}

func (c *fakeClock) Now() uint32 { return c.now }

// recordingDriver records output stage calls for verification.
type recordingDriver struct {
	clock      *fakeClock
	pulses     int
	pulseTimes []uint32 // clock reading at each pulse
	dirs       []bool
	enables    int
	disables   int
	enabled    bool
}

func (d *recordingDriver) EmitPulse() {
	d.pulses++
	if d.clock != nil {
		d.pulseTimes = append(d.pulseTimes, d.clock.now)
	}
}

func (d *recordingDriver) SetDirection(forward bool) {
	d.dirs = append(d.dirs, forward)
}

func (d *recordingDriver) Enable() {
	d.enables++
	d.enabled = true
}

func (d *recordingDriver) Disable() {
	d.disables++
	d.enabled = false
}

func (d *recordingDriver) reset() {
	d.pulses = 0
	d.pulseTimes = nil
	d.dirs = nil
	d.enables = 0
	d.disables = 0
}

// runToStop advances the clock by tick between Advance calls until the
// engine stops. It fails the test after maxCalls calls.
func runToStop(t *testing.T, e Engine, clk *fakeClock, tick uint32, maxCalls int) int {
	t.Helper()
	for i := 0; i < maxCalls; i++ {
		if e.Advance() == Stopped {
			return i
		}
		clk.now += tick
	}
	t.Fatalf("engine still %v after %d Advance calls", e.Phase(), maxCalls)
	return maxCalls
}
