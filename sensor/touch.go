package sensor

import (
	"time"

	"go.uber.org/zap"

	"github.com/namani/nxtcar/device"
	"github.com/namani/nxtcar/internal/shutdown"
	"github.com/namani/nxtcar/motor"
)

// TouchPoller watches a touch sensor and starts or stops its motor on
// press and release edges. It holds the sensor only through the narrow
// read interface; the motor is driven through its serializer so the
// poller never touches the device directly.
type TouchPoller struct {
	name     string
	dev      device.Touch
	motor    *motor.Serializer
	power    *motor.PowerCell
	interval time.Duration
	stop     *shutdown.Signal
	log      *zap.SugaredLogger
}

func NewTouchPoller(name string, dev device.Touch, m *motor.Serializer, power *motor.PowerCell, interval time.Duration, stop *shutdown.Signal, log *zap.SugaredLogger) *TouchPoller {
	return &TouchPoller{
		name:     name,
		dev:      dev,
		motor:    m,
		power:    power,
		interval: interval,
		stop:     stop,
		log:      log.Named(name),
	}
}

// Run polls until shutdown. The tracked state is seeded from a real
// read so a button already held at startup does not fire a spurious
// edge on the first iteration.
func (p *TouchPoller) Run() error {
	pressed, err := p.dev.Pressed()
	if err != nil {
		p.log.Warnf("initial read: %v", err)
	}
	for {
		select {
		case <-p.stop.Done():
			p.log.Debug("shutdown observed, touch loop exiting")
			return nil
		case <-time.After(jitter(p.interval)):
		}
		cur, err := p.dev.Pressed()
		if err != nil {
			p.log.Warnf("read: %v", err)
			continue
		}
		switch {
		case cur && !pressed:
			pressed = true
			p.log.Debug("switched on")
			p.issue(motor.Start{Power: p.power.Load()})
		case !cur && pressed:
			pressed = false
			p.log.Debug("switched off")
			p.issue(motor.Stop{Brake: p.motor.BrakeOnStop()})
		}
	}
}

// issue blocks until the serializer replies; a poller never has more
// than one command outstanding. A failed command is logged and polling
// continues.
func (p *TouchPoller) issue(cmd motor.Command) {
	res, err := p.motor.Apply(cmd)
	if err != nil {
		p.log.Warnf("%s: %v", cmd, err)
		return
	}
	p.log.Debugf("got result %+v", res.Telemetry)
}
