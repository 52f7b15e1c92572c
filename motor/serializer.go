// Package motor turns concurrent callers into a strictly ordered
// command stream against a single exclusively-owned motor.
package motor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/namani/nxtcar/device"
	"github.com/namani/nxtcar/internal/shutdown"
)

// ErrShutdown is returned by Apply once shutdown has been requested.
var ErrShutdown = errors.New("motor: shutdown in progress")

// requestBacklog absorbs momentary bursts from external callers. A
// poller blocks on its reply and so never has more than one request in
// flight.
const requestBacklog = 16

type request struct {
	cmd   Command
	reply chan reply
}

type reply struct {
	result Result
	err    error
}

// Serializer owns one motor device and executes commands against it one
// at a time. Apply may be called concurrently from any number of
// goroutines; commands are executed in arrival order, and each caller
// receives the result of exactly the command it submitted.
type Serializer struct {
	name  string
	dev   device.Motor
	brake bool
	stop  *shutdown.Signal
	sink  *Sink
	log   *zap.SugaredLogger

	requests chan request
}

// NewSerializer builds a serializer for dev. brake selects the stop
// policy pollers should request for this motor. sink may be nil.
func NewSerializer(name string, dev device.Motor, brake bool, stop *shutdown.Signal, sink *Sink, log *zap.SugaredLogger) *Serializer {
	return &Serializer{
		name:     name,
		dev:      dev,
		brake:    brake,
		stop:     stop,
		sink:     sink,
		log:      log.Named(name),
		requests: make(chan request, requestBacklog),
	}
}

func (s *Serializer) Name() string { return s.name }

// BrakeOnStop reports whether Stop commands for this motor should brake
// rather than coast.
func (s *Serializer) BrakeOnStop() bool { return s.brake }

// Apply enqueues cmd and blocks until the consumer loop has executed it,
// returning that command's result. Once shutdown has been requested it
// fails with ErrShutdown instead of blocking.
func (s *Serializer) Apply(cmd Command) (Result, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case s.requests <- req:
	case <-s.stop.Done():
		return Result{}, ErrShutdown
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-s.stop.Done():
		return Result{}, ErrShutdown
	}
}

// Run is the consumer loop and must be the only goroutine touching the
// motor device. It returns once shutdown is observed; a command already
// executing always finishes first.
func (s *Serializer) Run() error {
	s.log.Debug("motor loop running")
	for {
		select {
		case <-s.stop.Done():
			s.log.Debug("shutdown observed, motor loop exiting")
			return nil
		case req := <-s.requests:
			r := s.execute(req.cmd)
			// reply is buffered, this never blocks even if the
			// caller has already given up.
			req.reply <- r
			if s.sink != nil && r.err == nil {
				s.sink.Offer(r.result)
			}
		}
	}
}

func (s *Serializer) execute(cmd Command) reply {
	s.log.Debugf("fetched %s", cmd)
	t, err := cmd.execute(s.dev)
	if err != nil {
		// A failed command is the caller's problem; the loop keeps
		// serving subsequent commands.
		s.log.Warnf("%s: %v", cmd, err)
		return reply{err: fmt.Errorf("%s: %w", cmd, err)}
	}
	return reply{result: Result{
		Motor:     s.name,
		Command:   cmd.String(),
		Telemetry: t,
		Time:      time.Now(),
	}}
}
