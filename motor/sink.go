package motor

import (
	"go.uber.org/zap"

	"github.com/namani/nxtcar/internal/shutdown"
)

// Sink passively drains results whose callers did not need them beyond
// the synchronous reply, logs them, and optionally forwards each to a
// callback (the status server subscribes this way).
type Sink struct {
	stop *shutdown.Signal
	cb   func(Result)
	log  *zap.SugaredLogger
	ch   chan Result
}

// NewSink builds a sink. cb may be nil.
func NewSink(stop *shutdown.Signal, cb func(Result), log *zap.SugaredLogger) *Sink {
	return &Sink{
		stop: stop,
		cb:   cb,
		log:  log.Named("sink"),
		ch:   make(chan Result, 64),
	}
}

// Offer hands a result to the sink without blocking. Results are
// advisory; if the sink is backed up the result is dropped.
func (k *Sink) Offer(r Result) {
	select {
	case k.ch <- r:
	default:
		k.log.Debugf("backlogged, dropping %s result", r.Command)
	}
}

// Run drains offered results until shutdown.
func (k *Sink) Run() error {
	for {
		select {
		case <-k.stop.Done():
			return nil
		case r := <-k.ch:
			k.log.Debugf("fetched %s %s %+v", r.Motor, r.Command, r.Telemetry)
			if k.cb != nil {
				k.cb(r)
			}
		}
	}
}
