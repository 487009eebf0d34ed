package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/cjeanneret/stepramp/internal/debug"
	"github.com/cjeanneret/stepramp/internal/stepgen"
)

var (
	// ErrMoveRejected is returned when the engine refuses a move: the
	// clamped target is the current position or the speed is not positive.
	ErrMoveRejected = errors.New("move rejected")
	// ErrBusy is returned when a move is requested while another is running.
	ErrBusy = errors.New("motor busy")
)

// FaultReporter exposes output stage errors collected during a move.
type FaultReporter interface {
	Err() error
}

// Status is a snapshot of the axis.
type Status struct {
	Phase     string `json:"phase"`
	Position  int32  `json:"position"`
	Target    int32  `json:"target"`
	Remaining uint32 `json:"remaining"`
	Speed     uint32 `json:"speed"`
	Enabled   bool   `json:"enabled"`
}

// Controller owns the polling loop of a stepgen engine. It is an
// intermediate layer between the callers (CLI, web) and the pulse engine.
// Moves run on the caller's goroutine; Decelerate, Stop and Status may be
// called from any other goroutine.
type Controller struct {
	mu        sync.Mutex
	engine    stepgen.Engine
	faults    FaultReporter
	target    int32
	lastPhase stepgen.Phase

	// yield runs between two Advance calls with the lock released.
	yield func()
}

// NewController wraps engine. faults may be nil.
func NewController(engine stepgen.Engine, faults FaultReporter) *Controller {
	return &Controller{
		engine: engine,
		faults: faults,
		target: engine.Position(),
		yield:  runtime.Gosched,
	}
}

// MoveTo drives the axis to target and blocks until it stops. If ctx is
// cancelled the axis decelerates to a stop and ctx.Err() is returned.
func (c *Controller) MoveTo(ctx context.Context, target int32) error {
	return c.move(ctx, func(int32) int32 { return target })
}

// MoveBy drives the axis delta pulses from its current position.
func (c *Controller) MoveBy(ctx context.Context, delta int32) error {
	return c.move(ctx, func(pos int32) int32 { return addClamped(pos, delta) })
}

func (c *Controller) move(ctx context.Context, targetFrom func(pos int32) int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.engine.Phase() != stepgen.Stopped {
		c.mu.Unlock()
		return ErrBusy
	}
	target := targetFrom(c.engine.Position())
	if !c.engine.RequestMove(target) {
		c.mu.Unlock()
		return fmt.Errorf("move to %d: %w", target, ErrMoveRejected)
	}
	c.target = target
	debug.Info("Move to %d (%d pulses)", target, c.engine.DistanceRemaining())
	c.trackPhase(c.engine.Phase())
	c.mu.Unlock()

	cancelled := false
	for {
		if !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
				debug.Live("Move to %d cancelled, decelerating", target)
				c.Decelerate()
			default:
			}
		}

		c.mu.Lock()
		phase := c.engine.Advance()
		c.trackPhase(phase)
		c.mu.Unlock()

		if phase == stepgen.Stopped {
			break
		}
		c.yield()
	}

	if cancelled {
		return ctx.Err()
	}
	if c.faults != nil {
		if err := c.faults.Err(); err != nil {
			return fmt.Errorf("move to %d: %w", target, err)
		}
	}
	return nil
}

// Decelerate ramps the running move down to a stop as fast as the
// acceleration allows. Engines without a ramp stop immediately.
func (c *Controller) Decelerate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.engine.(stepgen.Decelerator); ok {
		d.DecelerateNow()
	} else {
		c.engine.Stop()
	}
	c.trackPhase(c.engine.Phase())
}

// Stop halts the motor immediately.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Stop()
	c.trackPhase(c.engine.Phase())
}

// EnableMotor turns on the driver. Motors hold position.
func (c *Controller) EnableMotor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Enable()
}

// DisableMotor stops any move and turns off the driver. Motors freewheel.
func (c *Controller) DisableMotor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Disable()
	c.trackPhase(c.engine.Phase())
}

// Busy reports whether a move is running.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Phase() != stepgen.Stopped
}

// Status returns a snapshot of the axis.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Phase:     c.engine.Phase().String(),
		Position:  c.engine.Position(),
		Target:    c.target,
		Remaining: c.engine.DistanceRemaining(),
		Speed:     c.engine.CurrentSpeed(),
		Enabled:   c.engine.IsEnabled(),
	}
}

// trackPhase logs phase changes. Caller holds mu.
func (c *Controller) trackPhase(p stepgen.Phase) {
	if p == c.lastPhase {
		return
	}
	debug.Phase(c.lastPhase.String(), p.String(), c.engine.Position())
	c.lastPhase = p
}

func addClamped(pos, delta int32) int32 {
	sum := int64(pos) + int64(delta)
	switch {
	case sum > math.MaxInt32:
		return math.MaxInt32
	case sum < math.MinInt32:
		return math.MinInt32
	}
	return int32(sum)
}
