//go:build !tinygo

package irq

import "sync/atomic"

// State is the interrupt state saved by Disable.
type State uintptr

// depth counts nested critical sections. Hosted Go cannot mask interrupts;
// the counter keeps save/restore pairing observable in tests.
var depth atomic.Int32

// Disable enters a critical section and returns the previous state.
func Disable() State {
	return State(depth.Add(1) - 1)
}

// Restore leaves the critical section entered by the matching Disable.
func Restore(state State) {
	depth.Store(int32(state))
}

// Depth returns the current critical section nesting depth.
func Depth() int {
	return int(depth.Load())
}
