// Package sensor runs the polling loops that watch the car's sensors
// and drive its motors through the serializer.
package sensor

import (
	"math/rand"
	"time"
)

// jitter returns a uniformly random wait in [0, max). Pollers sharing
// the brick link must not fall into lock step; randomizing each sleep
// spreads their telegrams over the bus.
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
