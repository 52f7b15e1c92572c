// Package car wires the configured sensors and motors together and
// runs all their loops until shutdown.
package car

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/namani/nxtcar/device"
	"github.com/namani/nxtcar/internal/config"
	"github.com/namani/nxtcar/internal/shutdown"
	"github.com/namani/nxtcar/motor"
	"github.com/namani/nxtcar/sensor"
)

// Devices resolves configured ports to device handles. The nxt brick
// implements it through an adapter; tests provide fakes.
type Devices interface {
	Motor(port string) (device.Motor, error)
	Touch(port int) (device.Touch, error)
	Range(port int) (device.Range, error)
}

// Car owns one shutdown signal and the loops wired from the
// configuration: one serializer per motor, one poller per sensor, and
// the result sink. Several sensors may share a motor; each motor has
// exactly one serializer.
type Car struct {
	signal *shutdown.Signal
	power  *motor.PowerCell
	motors map[string]*motor.Serializer
	sink   *motor.Sink
	loops  []func() error
	log    *zap.SugaredLogger
}

// New builds a car from cfg. resultCB may be nil; when set it receives
// every command result drained by the sink.
func New(cfg *config.Config, devs Devices, resultCB func(motor.Result), log *zap.SugaredLogger) (*Car, error) {
	c := &Car{
		signal: shutdown.New(),
		power:  motor.NewPowerCell(cfg.Power),
		motors: make(map[string]*motor.Serializer),
		log:    log,
	}
	c.sink = motor.NewSink(c.signal, resultCB, log)
	c.loops = append(c.loops, c.sink.Run)

	for _, mc := range cfg.Motors {
		dev, err := devs.Motor(mc.Port)
		if err != nil {
			return nil, fmt.Errorf("motor %q: %w", mc.Name, err)
		}
		s := motor.NewSerializer(mc.Name, dev, mc.Brake, c.signal, c.sink, log)
		c.motors[mc.Name] = s
		c.loops = append(c.loops, s.Run)
	}
	for _, tc := range cfg.TouchSensors {
		dev, err := devs.Touch(tc.Port)
		if err != nil {
			return nil, fmt.Errorf("touch sensor on port %d: %w", tc.Port, err)
		}
		p := sensor.NewTouchPoller(fmt.Sprintf("touch%d", tc.Port), dev,
			c.motors[tc.Motor], c.power, cfg.PollInterval, c.signal, log)
		c.loops = append(c.loops, p.Run)
	}
	for _, rc := range cfg.RangeSensors {
		dev, err := devs.Range(rc.Port)
		if err != nil {
			return nil, fmt.Errorf("range sensor on port %d: %w", rc.Port, err)
		}
		p := sensor.NewRangePoller(fmt.Sprintf("range%d", rc.Port), dev,
			c.motors[rc.Motor], c.power, rc.MinDistance, rc.ReverseTimeout,
			cfg.PollInterval, c.signal, log)
		c.loops = append(c.loops, p.Run)
	}
	return c, nil
}

// Motor returns the serializer for a configured motor name.
func (c *Car) Motor(name string) (*motor.Serializer, bool) {
	s, ok := c.motors[name]
	return s, ok
}

// Motors returns the configured motor names.
func (c *Car) Motors() []string {
	names := make([]string, 0, len(c.motors))
	for name := range c.motors {
		names = append(names, name)
	}
	return names
}

// Power returns the shared target-power cell.
func (c *Car) Power() *motor.PowerCell { return c.power }

// Stop requests shutdown. Idempotent.
func (c *Car) Stop() { c.signal.Set() }

// Run starts every loop and blocks until all of them have observed
// shutdown and exited. Canceling ctx requests shutdown too.
func (c *Car) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			c.log.Debug("context canceled, requesting shutdown")
			c.signal.Set()
		case <-c.signal.Done():
		}
		return nil
	})
	for _, run := range c.loops {
		run := run
		g.Go(run)
	}
	err := g.Wait()
	c.log.Info("all loops stopped")
	return err
}
