package nxt

import (
	"fmt"
	"time"

	"github.com/namani/nxtcar/device"
)

const (
	// turnPollInterval paces the tacho polling while a turn is in
	// progress.
	turnPollInterval = 50 * time.Millisecond
	// turnDegreeBudget is the per-degree allowance before a turn is
	// declared stalled.
	turnDegreeBudget = 20 * time.Millisecond
	turnBaseBudget   = 2 * time.Second
)

// Motor is one output port of a brick. It implements device.Motor.
// Access must be serialized by the caller; the serializer's consumer
// loop is its only user.
type Motor struct {
	b    *Brick
	port OutputPort
}

func (b *Brick) Motor(port OutputPort) *Motor {
	return &Motor{b: b, port: port}
}

func (m *Motor) Run(power int) error {
	return m.b.setOutputState(m.port, power, modeMotorOn|modeRegulated, regulationSpeed, 0, runStateRunning, 0)
}

func (m *Motor) Brake() error {
	return m.b.setOutputState(m.port, 0, modeMotorOn|modeBrake|modeRegulated, regulationSpeed, 0, runStateRunning, 0)
}

func (m *Motor) Idle() error {
	return m.b.setOutputState(m.port, 0, 0, regulationIdle, 0, runStateIdle, 0)
}

func (m *Motor) Telemetry() (device.Telemetry, error) {
	state, err := m.b.getOutputState(m.port)
	if err != nil {
		return device.Telemetry{}, err
	}
	return device.Telemetry{
		TachoCount:      state.tachoCount,
		BlockTachoCount: state.blockTachoCount,
		RotationCount:   state.rotationCount,
	}, nil
}

// Turn rotates by degrees at power and blocks until the brick reports
// the rotation complete, then brakes to hold the position. The firmware
// stops the motor at the tacho limit on its own; polling only tracks
// completion. The brick mutex is released between polls, so other
// loops' telegrams interleave on the link during a turn.
func (m *Motor) Turn(power, degrees int) error {
	if degrees <= 0 {
		return fmt.Errorf("nxt: turn of %d degrees", degrees)
	}
	start, err := m.Telemetry()
	if err != nil {
		return err
	}
	err = m.b.setOutputState(m.port, power, modeMotorOn|modeRegulated, regulationSpeed, 0, runStateRunning, uint32(degrees))
	if err != nil {
		return err
	}
	deadline := time.Now().Add(turnBaseBudget + time.Duration(degrees)*turnDegreeBudget)
	for {
		time.Sleep(turnPollInterval)
		cur, err := m.Telemetry()
		if err != nil {
			return err
		}
		delta := cur.TachoCount - start.TachoCount
		if delta < 0 {
			delta = -delta
		}
		if int(delta) >= degrees {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("nxt: turn stalled after %d of %d degrees", delta, degrees)
		}
	}
	return m.Brake()
}
