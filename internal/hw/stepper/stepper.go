package stepper

import (
	"fmt"
	"time"

	"github.com/cjeanneret/stepramp/internal/debug"
	"github.com/cjeanneret/stepramp/internal/hw/gpio"
	"github.com/cjeanneret/stepramp/internal/hw/irq"
	"github.com/cjeanneret/stepramp/internal/stepgen"
)

// DefaultPulseWidth is the STEP high time. A4988 needs 1µs, DRV8825 1.9µs.
const DefaultPulseWidth = 2 * time.Microsecond

// Config holds the pin wiring of a step/direction driver board.
type Config struct {
	StepPin    int
	DirPin     int
	EnablePin  int           // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	InvertDir  bool          // DIR LOW means forward
	PulseWidth time.Duration // STEP high time. 0 = DefaultPulseWidth.
}

// Output drives a step/direction board (A4988, DRV8825, TMC2208 in legacy
// mode) through GPIO. It implements stepgen.Driver.
type Output struct {
	gpio  gpio.Driver
	cfg   Config
	width time.Duration
	err   error
}

var _ stepgen.Driver = (*Output)(nil)

// NewOutput configures the pins as outputs. The driver board is left
// disabled; the engine enables it on the first move.
func NewOutput(g gpio.Driver, cfg Config) (*Output, error) {
	if cfg.StepPin <= 0 || cfg.DirPin <= 0 {
		return nil, fmt.Errorf("step and dir pins are required (step=%d dir=%d)", cfg.StepPin, cfg.DirPin)
	}
	if cfg.StepPin == cfg.DirPin {
		return nil, fmt.Errorf("step and dir share pin %d", cfg.StepPin)
	}

	pins := []int{cfg.StepPin, cfg.DirPin}
	if cfg.EnablePin > 0 {
		pins = append(pins, cfg.EnablePin)
	}
	for _, pin := range pins {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}
	if err := g.WritePin(cfg.StepPin, gpio.Low); err != nil {
		return nil, fmt.Errorf("reset step pin: %w", err)
	}

	width := cfg.PulseWidth
	if width <= 0 {
		width = DefaultPulseWidth
	}
	debug.Verbose("Stepper output: step=%d dir=%d enable=%d invert=%v width=%v",
		cfg.StepPin, cfg.DirPin, cfg.EnablePin, cfg.InvertDir, width)

	return &Output{gpio: g, cfg: cfg, width: width}, nil
}

// EmitPulse raises STEP for the pulse width then lowers it. The pulse is
// timed with interrupts held off so it is never stretched.
func (o *Output) EmitPulse() {
	irq.Do(func() {
		if err := o.gpio.WritePin(o.cfg.StepPin, gpio.High); err != nil {
			o.fail("step high", err)
			return
		}
		spin(o.width)
		if err := o.gpio.WritePin(o.cfg.StepPin, gpio.Low); err != nil {
			o.fail("step low", err)
		}
	})
}

// SetDirection drives DIR, honoring InvertDir.
func (o *Output) SetDirection(forward bool) {
	level := gpio.Level(forward != o.cfg.InvertDir)
	if err := o.gpio.WritePin(o.cfg.DirPin, level); err != nil {
		o.fail("dir", err)
	}
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (o *Output) Enable() {
	if o.cfg.EnablePin <= 0 {
		return
	}
	if err := o.gpio.WritePin(o.cfg.EnablePin, gpio.Low); err != nil {
		o.fail("enable", err)
	}
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (o *Output) Disable() {
	if o.cfg.EnablePin <= 0 {
		return
	}
	if err := o.gpio.WritePin(o.cfg.EnablePin, gpio.High); err != nil {
		o.fail("disable", err)
	}
}

// Err returns the first GPIO error seen since the last call and clears it.
func (o *Output) Err() error {
	err := o.err
	o.err = nil
	return err
}

func (o *Output) fail(op string, err error) {
	err = fmt.Errorf("stepper %s: %w", op, err)
	debug.Error(err)
	if o.err == nil {
		o.err = err
	}
}

// spin busy-waits for d. time.Sleep cannot resolve single microseconds.
func spin(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
