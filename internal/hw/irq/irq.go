// Package irq brackets short critical sections with an interrupt
// disable/restore pair. The saved state is restored exactly, so sections
// nest safely inside regions that already run with interrupts off.
package irq

// Do runs fn with interrupts disabled and restores the previous state on
// every exit path.
func Do(fn func()) {
	state := Disable()
	defer Restore(state)
	fn()
}
