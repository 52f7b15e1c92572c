package sensor

import (
	"time"

	"go.uber.org/zap"

	"github.com/namani/nxtcar/device"
	"github.com/namani/nxtcar/internal/shutdown"
	"github.com/namani/nxtcar/motor"
)

// reverseDegrees is the fixed rotation requested on a direction
// reversal.
const reverseDegrees = 180

// RangePoller watches an ultrasonic sensor and reverses the car when an
// obstacle comes closer than minDistance: it flips the sign of the
// shared power cell, asks the motor for a 180 degree turn, and then
// cools down for reverseTimeout so one obstacle does not trigger a
// reversal on every tick.
type RangePoller struct {
	name           string
	dev            device.Range
	motor          *motor.Serializer
	power          *motor.PowerCell
	minDistance    int
	reverseTimeout time.Duration
	interval       time.Duration
	stop           *shutdown.Signal
	log            *zap.SugaredLogger
}

func NewRangePoller(name string, dev device.Range, m *motor.Serializer, power *motor.PowerCell, minDistance int, reverseTimeout, interval time.Duration, stop *shutdown.Signal, log *zap.SugaredLogger) *RangePoller {
	return &RangePoller{
		name:           name,
		dev:            dev,
		motor:          m,
		power:          power,
		minDistance:    minDistance,
		reverseTimeout: reverseTimeout,
		interval:       interval,
		stop:           stop,
		log:            log.Named(name),
	}
}

// Run polls until shutdown.
func (p *RangePoller) Run() error {
	for {
		select {
		case <-p.stop.Done():
			p.log.Debug("shutdown observed, range loop exiting")
			return nil
		case <-time.After(jitter(p.interval)):
		}
		d, err := p.dev.Distance()
		if err != nil {
			p.log.Warnf("read: %v", err)
			continue
		}
		if d >= p.minDistance {
			continue
		}
		p.log.Debugf("obstacle at %dcm, reversing direction", d)
		power := p.power.FlipSign()
		res, err := p.motor.Apply(motor.Turn{Power: power, Degrees: reverseDegrees})
		if err != nil {
			p.log.Warnf("turn: %v", err)
		} else {
			p.log.Debugf("got result %+v", res.Telemetry)
		}
		select {
		case <-p.stop.Done():
			p.log.Debug("shutdown observed, range loop exiting")
			return nil
		case <-time.After(p.reverseTimeout):
		}
	}
}
