package nxt

import (
	"errors"
	"fmt"
)

// TouchSensor is a touch sensor on an input port. Implements
// device.Touch.
type TouchSensor struct {
	b    *Brick
	port InputPort
}

// Touch configures port as a boolean switch and returns its handle.
func (b *Brick) Touch(port InputPort) (*TouchSensor, error) {
	if err := b.setInputMode(port, sensorTypeSwitch, sensorModeBoolean); err != nil {
		return nil, fmt.Errorf("configuring touch sensor: %w", err)
	}
	return &TouchSensor{b: b, port: port}, nil
}

func (t *TouchSensor) Pressed() (bool, error) {
	scaled, err := t.b.getInputValues(t.port)
	if err != nil {
		return false, err
	}
	return scaled != 0, nil
}

// The ultrasonic sensor is an I2C device behind the brick's low-speed
// port. Address 0x02, register 0x42 holds the first measurement byte.
const (
	usAddress     = 0x02
	usMeasurement = 0x42
	// lsStatusRetries bounds the wait for the I2C transaction to
	// finish. Each retry costs one telegram round trip.
	lsStatusRetries = 10
)

// UltrasonicSensor is a range sensor on an input port. Implements
// device.Range.
type UltrasonicSensor struct {
	b    *Brick
	port InputPort
}

// Ultrasonic configures port for the low-speed bus and returns the
// sensor handle.
func (b *Brick) Ultrasonic(port InputPort) (*UltrasonicSensor, error) {
	if err := b.setInputMode(port, sensorTypeLowspeed9V, sensorModeRaw); err != nil {
		return nil, fmt.Errorf("configuring ultrasonic sensor: %w", err)
	}
	return &UltrasonicSensor{b: b, port: port}, nil
}

// Distance reads one measurement in centimeters. 255 means nothing in
// range.
func (u *UltrasonicSensor) Distance() (int, error) {
	if err := u.b.lsWrite(u.port, []byte{usAddress, usMeasurement}, 1); err != nil {
		return 0, err
	}
	for i := 0; ; i++ {
		n, err := u.b.lsGetStatus(u.port)
		if err != nil {
			return 0, err
		}
		if n >= 1 {
			break
		}
		if i >= lsStatusRetries {
			return 0, errors.New("nxt: ultrasonic measurement not ready")
		}
	}
	data, err := u.b.lsRead(u.port)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, errors.New("nxt: empty ultrasonic reading")
	}
	return int(data[0]), nil
}
