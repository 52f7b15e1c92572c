package nxt

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// Discrete simulation step size.
	simStepSize = 5 * time.Millisecond
	// Motor speed at full power in degrees/second.
	simFullPowerRate = 900.0
)

type simMotor struct {
	power      int
	running    bool
	tacho      float64
	limitBase  float64
	tachoLimit uint32
}

// Simulator is an in-memory brick speaking the telegram protocol over
// one end of a pipe. Motors integrate power into tacho counts and honor
// tacho limits; touch and distance state is scripted through SetPressed
// and SetDistance.
type Simulator struct {
	conn io.ReadWriteCloser

	mu        sync.Mutex
	name      string
	motors    [3]simMotor
	pressed   [4]bool
	distance  [4]int
	lsPending [4][]byte
}

// NewSimulator returns a simulator and the peer end of its pipe,
// suitable for NewBrick.
func NewSimulator(name string) (*Simulator, net.Conn) {
	a, b := net.Pipe()
	s := &Simulator{conn: a, name: name}
	for i := range s.distance {
		// Nothing in range.
		s.distance[i] = 255
	}
	return s, b
}

// SetPressed scripts the state of a touch sensor.
func (s *Simulator) SetPressed(port InputPort, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed[port] = v
}

// SetDistance scripts the reading of an ultrasonic sensor, in cm.
func (s *Simulator) SetDistance(port InputPort, cm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distance[port] = cm
}

// Tacho returns the current simulated tacho count of a motor.
func (s *Simulator) Tacho(port OutputPort) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int32(s.motors[port].tacho)
}

// Run serves the pipe until ctx is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		t := time.NewTicker(simStepSize)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step()
		}
	})
	g.Go(s.reader)
	return g.Wait()
}

func (s *Simulator) reader() error {
	var hdr [2]byte
	for {
		if _, err := io.ReadFull(s.conn, hdr[:]); err != nil {
			return err
		}
		telegram := make([]byte, binary.LittleEndian.Uint16(hdr[:]))
		if _, err := io.ReadFull(s.conn, telegram); err != nil {
			return err
		}
		reply := s.handle(telegram)
		if reply == nil {
			continue
		}
		out := make([]byte, 2+len(reply))
		binary.LittleEndian.PutUint16(out, uint16(len(reply)))
		copy(out[2:], reply)
		if _, err := s.conn.Write(out); err != nil {
			return err
		}
	}
}

// step advances the physics by one tick.
func (s *Simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt := simStepSize.Seconds()
	for i := range s.motors {
		m := &s.motors[i]
		if !m.running {
			continue
		}
		m.tacho += float64(m.power) / 100 * simFullPowerRate * dt
		if m.tachoLimit == 0 {
			continue
		}
		delta := m.tacho - m.limitBase
		if delta < 0 {
			delta = -delta
		}
		if delta >= float64(m.tachoLimit) {
			// The firmware stops at the limit on its own.
			if m.tacho > m.limitBase {
				m.tacho = m.limitBase + float64(m.tachoLimit)
			} else {
				m.tacho = m.limitBase - float64(m.tachoLimit)
			}
			m.running = false
		}
	}
}

func statusReply(op, status byte) []byte {
	return []byte{telegramReply, op, status}
}

func (s *Simulator) handle(t []byte) []byte {
	if len(t) < 2 {
		return nil
	}
	typ, op := t[0], t[1]
	s.mu.Lock()
	defer s.mu.Unlock()
	var reply []byte
	switch {
	case typ == telegramSystem && op == opGetDeviceInfo:
		reply = make([]byte, 33)
		reply[0], reply[1] = telegramReply, op
		copy(reply[3:18], s.name)
	case op == opSetOutputState && len(t) >= 12:
		power := int(int8(t[3]))
		runState := t[7]
		limit := binary.LittleEndian.Uint32(t[8:12])
		apply := func(m *simMotor) {
			m.power = power
			m.tachoLimit = limit
			m.limitBase = m.tacho
			m.running = runState == runStateRunning && power != 0
		}
		if port := t[2]; port == 0xFF {
			for i := range s.motors {
				apply(&s.motors[i])
			}
		} else if int(port) < len(s.motors) {
			apply(&s.motors[port])
		}
		reply = statusReply(op, 0)
	case op == opGetOutputState && len(t) >= 3 && int(t[2]) < len(s.motors):
		m := s.motors[t[2]]
		reply = make([]byte, 25)
		reply[0], reply[1] = telegramReply, op
		reply[3] = t[2]
		reply[4] = byte(int8(m.power))
		if m.running {
			reply[5] = modeMotorOn | modeRegulated
			reply[8] = runStateRunning
		}
		binary.LittleEndian.PutUint32(reply[9:], m.tachoLimit)
		tacho := uint32(int32(m.tacho))
		binary.LittleEndian.PutUint32(reply[13:], tacho)
		binary.LittleEndian.PutUint32(reply[17:], tacho)
		binary.LittleEndian.PutUint32(reply[21:], tacho)
	case op == opSetInputMode:
		reply = statusReply(op, 0)
	case op == opGetInputValues && len(t) >= 3 && int(t[2]) < len(s.pressed):
		reply = make([]byte, 16)
		reply[0], reply[1] = telegramReply, op
		reply[3] = t[2]
		reply[4] = 1 // valid
		if s.pressed[t[2]] {
			binary.LittleEndian.PutUint16(reply[12:], 1)
		}
	case op == opLSWrite && len(t) >= 5 && int(t[2]) < len(s.lsPending):
		port := t[2]
		txLen, rxLen := int(t[3]), int(t[4])
		if len(t) >= 5+txLen && txLen == 2 && rxLen >= 1 &&
			t[5] == usAddress && t[6] == usMeasurement {
			s.lsPending[port] = []byte{byte(s.distance[port])}
		}
		reply = statusReply(op, 0)
	case op == opLSGetStatus && len(t) >= 3 && int(t[2]) < len(s.lsPending):
		reply = append(statusReply(op, 0), byte(len(s.lsPending[t[2]])))
	case op == opLSRead && len(t) >= 3 && int(t[2]) < len(s.lsPending):
		data := s.lsPending[t[2]]
		s.lsPending[t[2]] = nil
		reply = make([]byte, 20)
		reply[0], reply[1] = telegramReply, op
		reply[3] = byte(len(data))
		copy(reply[4:], data)
	default:
		// 0xBE is the firmware's "unknown command" status.
		reply = statusReply(op, 0xBE)
	}
	if typ == telegramDirectNoReply {
		return nil
	}
	return reply
}
