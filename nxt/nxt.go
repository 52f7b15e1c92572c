// Package nxt speaks the LEGO NXT direct-command protocol to a brick
// over a Bluetooth RFCOMM serial port or a serial-over-TCP bridge, and
// exposes its motors and sensors through the device interfaces.
package nxt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// ErrNotFound is returned when the configured brick cannot be reached
// or reports the wrong name.
var ErrNotFound = errors.New("nxt: brick not found")

// Telegram types.
const (
	telegramDirect        = 0x00
	telegramSystem        = 0x01
	telegramReply         = 0x02
	telegramDirectNoReply = 0x80
)

// Direct command opcodes.
const (
	opSetOutputState = 0x04
	opSetInputMode   = 0x05
	opGetOutputState = 0x06
	opGetInputValues = 0x07
	opLSGetStatus    = 0x0E
	opLSWrite        = 0x0F
	opLSRead         = 0x10
)

// System command opcodes.
const (
	opGetDeviceInfo = 0x9B
)

// Output mode bits.
const (
	modeMotorOn   = 0x01
	modeBrake     = 0x02
	modeRegulated = 0x04
)

// Regulation modes.
const (
	regulationIdle  = 0x00
	regulationSpeed = 0x01
)

// Run states.
const (
	runStateIdle    = 0x00
	runStateRunning = 0x20
)

// Sensor types and modes.
const (
	sensorTypeSwitch     = 0x01
	sensorTypeLowspeed9V = 0x0B
	sensorModeRaw        = 0x00
	sensorModeBoolean    = 0x20
)

// OutputPort is a motor port, A through C.
type OutputPort byte

const (
	OutA OutputPort = iota
	OutB
	OutC
)

func ParseOutputPort(s string) (OutputPort, error) {
	switch s {
	case "A":
		return OutA, nil
	case "B":
		return OutB, nil
	case "C":
		return OutC, nil
	}
	return 0, fmt.Errorf("nxt: invalid output port %q", s)
}

// InputPort is a sensor port. The connector labeled 1 on the brick is
// port 0 on the wire.
type InputPort byte

// ParseInputPort converts the 1-based connector label.
func ParseInputPort(n int) (InputPort, error) {
	if n < 1 || n > 4 {
		return 0, fmt.Errorf("nxt: invalid input port %d", n)
	}
	return InputPort(n - 1), nil
}

// Brick is one NXT brick. The link is half duplex: every telegram
// exchange holds the mutex, so concurrent device handles interleave
// whole telegrams rather than corrupting the stream.
type Brick struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	name string
}

// Connect opens the brick on a serial port. When name is non-empty the
// brick must report it, else the connection fails with ErrNotFound.
func Connect(port string, name string) (*Brick, error) {
	// Baud rate does not matter over RFCOMM.
	c := &serial.Config{Name: port, Baud: 9600, ReadTimeout: 5 * time.Second}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q: %v", ErrNotFound, port, err)
	}
	return NewBrick(s, name)
}

// ConnectTCP opens the brick through a serial-over-TCP bridge.
func ConnectTCP(ctx context.Context, addr string, name string) (*Brick, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %q: %v", ErrNotFound, addr, err)
	}
	return NewBrick(conn, name)
}

// NewBrick wraps an open link and verifies the brick answers, matching
// its reported name against name when given.
func NewBrick(conn io.ReadWriteCloser, name string) (*Brick, error) {
	b := &Brick{conn: conn}
	got, err := b.deviceName()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if name != "" && got != name {
		conn.Close()
		return nil, fmt.Errorf("%w: brick reports name %q, want %q", ErrNotFound, got, name)
	}
	b.name = got
	return b, nil
}

func (b *Brick) Name() string { return b.name }

func (b *Brick) Close() error { return b.conn.Close() }

// exchange sends one telegram and reads its reply. Telegrams are
// framed with a 2-byte little-endian length, the Bluetooth framing.
func (b *Brick) exchange(telegram []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 2+len(telegram))
	binary.LittleEndian.PutUint16(out, uint16(len(telegram)))
	copy(out[2:], telegram)
	if _, err := b.conn.Write(out); err != nil {
		return nil, fmt.Errorf("nxt: writing telegram: %w", err)
	}
	if telegram[0] == telegramDirectNoReply {
		return nil, nil
	}
	var hdr [2]byte
	if _, err := io.ReadFull(b.conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("nxt: reading reply length: %w", err)
	}
	reply := make([]byte, binary.LittleEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(b.conn, reply); err != nil {
		return nil, fmt.Errorf("nxt: reading reply: %w", err)
	}
	if len(reply) < 3 || reply[0] != telegramReply || reply[1] != telegram[1] {
		return nil, fmt.Errorf("nxt: malformed reply to command %#02x", telegram[1])
	}
	if reply[2] != 0 {
		return nil, fmt.Errorf("nxt: command %#02x failed with status %#02x", telegram[1], reply[2])
	}
	return reply, nil
}

func (b *Brick) deviceName() (string, error) {
	reply, err := b.exchange([]byte{telegramSystem, opGetDeviceInfo})
	if err != nil {
		return "", err
	}
	if len(reply) < 18 {
		return "", errors.New("nxt: short device info reply")
	}
	name := reply[3:18]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	return string(name), nil
}

func (b *Brick) setOutputState(port OutputPort, power int, mode, regulation byte, turnRatio int, runState byte, tachoLimit uint32) error {
	telegram := []byte{
		telegramDirect, opSetOutputState,
		byte(port), byte(int8(power)), mode, regulation, byte(int8(turnRatio)), runState,
		0, 0, 0, 0,
	}
	binary.LittleEndian.PutUint32(telegram[8:], tachoLimit)
	_, err := b.exchange(telegram)
	return err
}

func (b *Brick) getOutputState(port OutputPort) (outputState, error) {
	reply, err := b.exchange([]byte{telegramDirect, opGetOutputState, byte(port)})
	if err != nil {
		return outputState{}, err
	}
	if len(reply) < 25 {
		return outputState{}, errors.New("nxt: short output state reply")
	}
	return outputState{
		power:           int(int8(reply[4])),
		mode:            reply[5],
		runState:        reply[8],
		tachoLimit:      binary.LittleEndian.Uint32(reply[9:]),
		tachoCount:      int32(binary.LittleEndian.Uint32(reply[13:])),
		blockTachoCount: int32(binary.LittleEndian.Uint32(reply[17:])),
		rotationCount:   int32(binary.LittleEndian.Uint32(reply[21:])),
	}, nil
}

type outputState struct {
	power           int
	mode            byte
	runState        byte
	tachoLimit      uint32
	tachoCount      int32
	blockTachoCount int32
	rotationCount   int32
}

func (b *Brick) setInputMode(port InputPort, sensorType, sensorMode byte) error {
	_, err := b.exchange([]byte{telegramDirect, opSetInputMode, byte(port), sensorType, sensorMode})
	return err
}

func (b *Brick) getInputValues(port InputPort) (int16, error) {
	reply, err := b.exchange([]byte{telegramDirect, opGetInputValues, byte(port)})
	if err != nil {
		return 0, err
	}
	if len(reply) < 14 {
		return 0, errors.New("nxt: short input values reply")
	}
	if reply[4] == 0 {
		return 0, errors.New("nxt: input value not valid")
	}
	scaled := int16(binary.LittleEndian.Uint16(reply[12:]))
	return scaled, nil
}

func (b *Brick) lsWrite(port InputPort, data []byte, rxLen int) error {
	telegram := append([]byte{telegramDirect, opLSWrite, byte(port), byte(len(data)), byte(rxLen)}, data...)
	_, err := b.exchange(telegram)
	return err
}

func (b *Brick) lsGetStatus(port InputPort) (int, error) {
	reply, err := b.exchange([]byte{telegramDirect, opLSGetStatus, byte(port)})
	if err != nil {
		return 0, err
	}
	if len(reply) < 4 {
		return 0, errors.New("nxt: short ls status reply")
	}
	return int(reply[3]), nil
}

func (b *Brick) lsRead(port InputPort) ([]byte, error) {
	reply, err := b.exchange([]byte{telegramDirect, opLSRead, byte(port)})
	if err != nil {
		return nil, err
	}
	if len(reply) < 20 {
		return nil, errors.New("nxt: short ls read reply")
	}
	n := int(reply[3])
	if n > 16 {
		n = 16
	}
	return reply[4 : 4+n], nil
}
