package stepper

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/stepramp/internal/hw/gpio"
	"github.com/cjeanneret/stepramp/internal/hw/irq"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	failPin  int
	failWith error
	irqDepth []int // irq depth seen at each write
}

type gpioCall struct {
	op    string // "setup", "write"
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.failWith != nil && pin == d.failPin {
		return d.failWith
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	d.irqDepth = append(d.irqDepth, irq.Depth())
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error {
	return nil
}

func (d *recordingDriver) writeCallsForPin(pin int) []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" && c.pin == pin {
			result = append(result, c)
		}
	}
	return result
}

func testConfig() Config {
	return Config{
		StepPin:    17,
		DirPin:     27,
		EnablePin:  5,
		PulseWidth: time.Microsecond,
	}
}

func TestNewOutput_SetsUpPins(t *testing.T) {
	drv := &recordingDriver{}
	if _, err := NewOutput(drv, testConfig()); err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	setup := map[int]bool{}
	for _, c := range drv.calls {
		if c.op == "setup" {
			setup[c.pin] = true
		}
	}
	for _, pin := range []int{17, 27, 5} {
		if !setup[pin] {
			t.Errorf("pin %d not set up", pin)
		}
	}
	if w := drv.writeCallsForPin(17); len(w) != 1 || w[0].level != gpio.Low {
		t.Errorf("step pin should be driven LOW once at init, got %v", w)
	}
	if w := drv.writeCallsForPin(5); len(w) != 0 {
		t.Errorf("enable pin should be left alone at init, got %v", w)
	}
}

func TestNewOutput_InvalidPins(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no step", Config{DirPin: 27}},
		{"no dir", Config{StepPin: 17}},
		{"shared", Config{StepPin: 17, DirPin: 17}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewOutput(&recordingDriver{}, tc.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewOutput_DefaultPulseWidth(t *testing.T) {
	o, err := NewOutput(&recordingDriver{}, Config{StepPin: 17, DirPin: 27})
	if err != nil {
		t.Fatal(err)
	}
	if o.width != DefaultPulseWidth {
		t.Errorf("width = %v, want %v", o.width, DefaultPulseWidth)
	}
}

func TestOutput_EmitPulse(t *testing.T) {
	drv := &recordingDriver{}
	o, _ := NewOutput(drv, testConfig())
	drv.calls, drv.irqDepth = nil, nil

	o.EmitPulse()
	o.EmitPulse()

	writes := drv.writeCallsForPin(17)
	want := []gpio.Level{gpio.High, gpio.Low, gpio.High, gpio.Low}
	if len(writes) != len(want) {
		t.Fatalf("step writes = %d, want %d", len(writes), len(want))
	}
	for i, w := range writes {
		if w.level != want[i] {
			t.Errorf("write %d level = %v, want %v", i, w.level, want[i])
		}
	}
	for i, d := range drv.irqDepth {
		if d != 1 {
			t.Errorf("write %d ran at irq depth %d, want 1", i, d)
		}
	}
	if irq.Depth() != 0 {
		t.Errorf("irq depth after pulse = %d, want 0", irq.Depth())
	}
}

func TestOutput_SetDirection(t *testing.T) {
	cases := []struct {
		invert  bool
		forward bool
		want    gpio.Level
	}{
		{false, true, gpio.High},
		{false, false, gpio.Low},
		{true, true, gpio.Low},
		{true, false, gpio.High},
	}
	for _, tc := range cases {
		drv := &recordingDriver{}
		cfg := testConfig()
		cfg.InvertDir = tc.invert
		o, _ := NewOutput(drv, cfg)
		drv.calls = nil

		o.SetDirection(tc.forward)
		w := drv.writeCallsForPin(27)
		if len(w) != 1 || w[0].level != tc.want {
			t.Errorf("invert=%v forward=%v: dir writes %v, want %v", tc.invert, tc.forward, w, tc.want)
		}
	}
}

func TestOutput_EnableDisableActiveLow(t *testing.T) {
	drv := &recordingDriver{}
	o, _ := NewOutput(drv, testConfig())
	drv.calls = nil

	o.Enable()
	o.Disable()

	w := drv.writeCallsForPin(5)
	if len(w) != 2 {
		t.Fatalf("enable pin writes = %d, want 2", len(w))
	}
	if w[0].level != gpio.Low {
		t.Error("Enable should drive ENABLE LOW")
	}
	if w[1].level != gpio.High {
		t.Error("Disable should drive ENABLE HIGH")
	}
}

func TestOutput_NoEnablePin(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	cfg.EnablePin = 0
	o, _ := NewOutput(drv, cfg)
	drv.calls = nil

	o.Enable()
	o.Disable()
	if len(drv.calls) != 0 {
		t.Errorf("expected no GPIO calls without an enable pin, got %v", drv.calls)
	}
}

func TestOutput_ErrorsAreKept(t *testing.T) {
	drv := &recordingDriver{}
	o, _ := NewOutput(drv, testConfig())

	boom := errors.New("bus fault")
	drv.failPin, drv.failWith = 17, boom
	o.EmitPulse()
	o.EmitPulse()

	err := o.Err()
	if !errors.Is(err, boom) {
		t.Fatalf("Err() = %v, want wrapped %v", err, boom)
	}
	if o.Err() != nil {
		t.Error("Err should clear after being read")
	}
	if irq.Depth() != 0 {
		t.Errorf("irq depth after failed pulse = %d, want 0", irq.Depth())
	}
}
