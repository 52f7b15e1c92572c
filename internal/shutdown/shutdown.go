// Package shutdown provides the broadcast flag used for cooperative
// termination. The signal is write-once: once set it stays set, and a
// loop that starts (or re-checks) after the fact still observes it.
package shutdown

import "sync"

// Signal is a one-way broadcast flag. The zero value is not usable; use
// New.
type Signal struct {
	once sync.Once
	done chan struct{}
}

func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set marks the signal. Safe to call any number of times, from any
// number of goroutines.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.done) })
}

// IsSet reports whether Set has been called, without blocking.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once Set has been called, for
// use in select statements.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
