package motor

import "sync/atomic"

// PowerCell is the target-power value shared between sensor pollers.
// It is the one piece of state touched from outside the serializer's
// consumer loop; only Load and FlipSign are supported.
type PowerCell struct {
	v atomic.Int32
}

func NewPowerCell(power int) *PowerCell {
	c := &PowerCell{}
	c.v.Store(int32(power))
	return c
}

func (c *PowerCell) Load() int {
	return int(c.v.Load())
}

// FlipSign reverses the driving direction and returns the new value.
// Compare-and-swap so concurrent flips are never lost.
func (c *PowerCell) FlipSign() int {
	for {
		old := c.v.Load()
		if c.v.CompareAndSwap(old, -old) {
			return int(-old)
		}
	}
}
