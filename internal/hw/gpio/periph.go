package gpio

import (
	"fmt"
	"strconv"

	"github.com/cjeanneret/stepramp/internal/debug"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphDriver drives pins through periph.io host drivers. Unlike go-rpio
// it also works on boards other than the Raspberry Pi (Allwinner, BeagleBone).
// Pins are addressed by their BCM/GPIO number.
type PeriphDriver struct {
	pins map[int]pgpio.PinIO
}

// NewPeriphDriver loads the periph host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing real GPIO driver (periph.io)")

	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	for _, d := range state.Loaded {
		debug.Verbose("periph driver loaded: %s", d)
	}

	return &PeriphDriver{
		pins: make(map[int]pgpio.PinIO),
	}, nil
}

func (p *PeriphDriver) lookup(pin int) (pgpio.PinIO, error) {
	if io, ok := p.pins[pin]; ok {
		return io, nil
	}
	io := gpioreg.ByName(strconv.Itoa(pin))
	if io == nil {
		return nil, fmt.Errorf("gpio %d not found", pin)
	}
	p.pins[pin] = io
	return io, nil
}

func (p *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		return io.In(pgpio.PullNoChange, pgpio.NoEdge)
	case Output:
		return io.Out(pgpio.Low)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
}

func (p *PeriphDriver) WritePin(pin int, level Level) error {
	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	if debug.IsEnabled(debug.LevelTrace) {
		debug.GPIO("WritePin", pin, level)
	}
	return io.Out(pgpio.Level(level))
}

func (p *PeriphDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	io, err := p.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(io.Read()), nil
}

func (p *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph driver)")

	var firstErr error
	for pin, io := range p.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		if err := io.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("reset gpio %d: %w", pin, err)
		}
	}
	return firstErr
}
