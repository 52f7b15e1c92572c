package motor

import (
	"fmt"
	"time"

	"github.com/namani/nxtcar/device"
)

// Result is the telemetry snapshot captured by one executed command.
type Result struct {
	Motor     string           `json:"motor"`
	Command   string           `json:"command"`
	Telemetry device.Telemetry `json:"telemetry"`
	Time      time.Time        `json:"time"`
}

// Command is one entry of the motor command vocabulary. Commands are
// immutable values; each is executed exactly once by the serializer
// that receives it.
type Command interface {
	execute(m device.Motor) (device.Telemetry, error)
	fmt.Stringer
}

// Start drives the motor at Power. Telemetry is sampled before the run
// command is issued, so the caller sees the counters as they were at
// start time. Stop and Turn sample after instead.
type Start struct {
	Power int
}

func (c Start) execute(m device.Motor) (device.Telemetry, error) {
	t, err := m.Telemetry()
	if err != nil {
		return device.Telemetry{}, err
	}
	if err := m.Run(c.Power); err != nil {
		return device.Telemetry{}, err
	}
	return t, nil
}

func (c Start) String() string { return fmt.Sprintf("start(power=%d)", c.Power) }

// Stop halts the motor, braking if Brake is set and coasting otherwise,
// and samples telemetry after the stop.
type Stop struct {
	Brake bool
}

func (c Stop) execute(m device.Motor) (device.Telemetry, error) {
	var err error
	if c.Brake {
		err = m.Brake()
	} else {
		err = m.Idle()
	}
	if err != nil {
		return device.Telemetry{}, err
	}
	return m.Telemetry()
}

func (c Stop) String() string { return fmt.Sprintf("stop(brake=%t)", c.Brake) }

// Turn rotates the motor by Degrees at Power, blocking until the move
// has mechanically completed, and samples telemetry after.
type Turn struct {
	Power   int
	Degrees int
}

func (c Turn) execute(m device.Motor) (device.Telemetry, error) {
	if err := m.Turn(c.Power, c.Degrees); err != nil {
		return device.Telemetry{}, err
	}
	return m.Telemetry()
}

func (c Turn) String() string {
	return fmt.Sprintf("turn(power=%d, degrees=%d)", c.Power, c.Degrees)
}
