// Package clock provides the tick source used by the pulse engines.
package clock

import "time"

// System is a free-running microsecond counter. Like an MCU timer it is
// 32 bits wide and wraps roughly every 71 minutes.
type System struct {
	start time.Time
}

// NewSystem returns a counter that reads zero now.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Now returns the microseconds elapsed since NewSystem, truncated to 32 bits.
func (s *System) Now() uint32 {
	return uint32(time.Since(s.start) / time.Microsecond)
}
