package sensor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/namani/nxtcar/device"
	"github.com/namani/nxtcar/internal/shutdown"
	"github.com/namani/nxtcar/motor"
)

const testInterval = 2 * time.Millisecond

// recordMotor implements device.Motor and records the actuation calls.
type recordMotor struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordMotor) record(c string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordMotor) actuations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordMotor) Run(power int) error {
	r.record(fmt.Sprintf("run(%d)", power))
	return nil
}

func (r *recordMotor) Brake() error { r.record("brake"); return nil }
func (r *recordMotor) Idle() error  { r.record("idle"); return nil }

func (r *recordMotor) Turn(power, degrees int) error {
	r.record(fmt.Sprintf("turn(%d,%d)", power, degrees))
	return nil
}

func (r *recordMotor) Telemetry() (device.Telemetry, error) {
	return device.Telemetry{}, nil
}

// scriptedTouch replays a fixed boolean sequence, then keeps returning
// the final value. done is closed once the script is exhausted.
type scriptedTouch struct {
	mu   sync.Mutex
	seq  []bool
	last bool
	done chan struct{}
	over bool
}

func newScriptedTouch(seq ...bool) *scriptedTouch {
	return &scriptedTouch{seq: seq, done: make(chan struct{})}
}

func (s *scriptedTouch) Pressed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seq) == 0 {
		if !s.over {
			s.over = true
			close(s.done)
		}
		return s.last, nil
	}
	s.last = s.seq[0]
	s.seq = s.seq[1:]
	return s.last, nil
}

type scriptedRange struct {
	mu   sync.Mutex
	seq  []int
	last int
	done chan struct{}
	over bool
}

func newScriptedRange(seq ...int) *scriptedRange {
	return &scriptedRange{seq: seq, done: make(chan struct{})}
}

func (s *scriptedRange) Distance() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seq) == 0 {
		if !s.over {
			s.over = true
			close(s.done)
		}
		return s.last, nil
	}
	s.last = s.seq[0]
	s.seq = s.seq[1:]
	return s.last, nil
}

func startMotor(t *testing.T, dev device.Motor, brake bool, stop *shutdown.Signal) *motor.Serializer {
	t.Helper()
	s := motor.NewSerializer("a", dev, brake, stop, nil, zap.NewNop().Sugar())
	go s.Run()
	return s
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("script not exhausted in time")
	}
}

func TestTouchPollerFiresOncePerEdge(t *testing.T) {
	stop := shutdown.New()
	dev := &recordMotor{}
	m := startMotor(t, dev, false, stop)
	// First value seeds the tracked state; one press edge, one release
	// edge follow.
	touch := newScriptedTouch(false, false, true, true, false)
	p := NewTouchPoller("touch1", touch, m, motor.NewPowerCell(100), testInterval, stop, zap.NewNop().Sugar())

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()
	waitDone(t, touch.done)
	stop.Set()
	if err := <-ran; err != nil {
		t.Fatalf("poller: %v", err)
	}

	want := []string{"run(100)", "idle"}
	got := dev.actuations()
	if len(got) != len(want) {
		t.Fatalf("actuations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("actuations = %v, want %v", got, want)
		}
	}
}

func TestTouchPollerSeedsStateFromInitialRead(t *testing.T) {
	stop := shutdown.New()
	dev := &recordMotor{}
	m := startMotor(t, dev, false, stop)
	// Button held at startup: no start edge until it is released and
	// pressed again.
	touch := newScriptedTouch(true, true, true)
	p := NewTouchPoller("touch1", touch, m, motor.NewPowerCell(100), testInterval, stop, zap.NewNop().Sugar())

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()
	waitDone(t, touch.done)
	stop.Set()
	<-ran

	if got := dev.actuations(); len(got) != 0 {
		t.Fatalf("spurious actuations on non-transition: %v", got)
	}
}

func TestTouchPollerUsesBrakePolicy(t *testing.T) {
	stop := shutdown.New()
	dev := &recordMotor{}
	m := startMotor(t, dev, true, stop)
	touch := newScriptedTouch(false, true, false)
	p := NewTouchPoller("touch1", touch, m, motor.NewPowerCell(100), testInterval, stop, zap.NewNop().Sugar())

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()
	waitDone(t, touch.done)
	stop.Set()
	<-ran

	got := dev.actuations()
	if len(got) != 2 || got[1] != "brake" {
		t.Fatalf("actuations = %v, want [run(100) brake]", got)
	}
}

// timedRange reports an obstacle for the first near window of wall
// time, then clear readings; done is closed on the first read after
// settle.
type timedRange struct {
	mu           sync.Mutex
	start        time.Time
	near, settle time.Duration
	done         chan struct{}
	over         bool
}

func (s *timedRange) Distance() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start.IsZero() {
		s.start = time.Now()
	}
	elapsed := time.Since(s.start)
	if elapsed < s.near {
		return 5, nil
	}
	if elapsed > s.settle && !s.over {
		s.over = true
		close(s.done)
	}
	return 100, nil
}

func TestRangePollerDebouncesReversal(t *testing.T) {
	stop := shutdown.New()
	dev := &recordMotor{}
	m := startMotor(t, dev, false, stop)
	power := motor.NewPowerCell(100)
	// The obstacle stays close for less time than the cooldown: the
	// poller must reverse exactly once, not once per tick.
	rng := &timedRange{near: 50 * time.Millisecond, settle: 300 * time.Millisecond, done: make(chan struct{})}
	p := NewRangePoller("range1", rng, m, power, 20, 200*time.Millisecond, testInterval, stop, zap.NewNop().Sugar())

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()
	waitDone(t, rng.done)
	stop.Set()
	if err := <-ran; err != nil {
		t.Fatalf("poller: %v", err)
	}

	got := dev.actuations()
	if len(got) != 1 || got[0] != "turn(-100,180)" {
		t.Fatalf("actuations = %v, want exactly [turn(-100,180)]", got)
	}
	if power.Load() != -100 {
		t.Fatalf("power = %d, want -100 after one reversal", power.Load())
	}
}

func TestRangePollerIgnoresFarReadings(t *testing.T) {
	stop := shutdown.New()
	dev := &recordMotor{}
	m := startMotor(t, dev, false, stop)
	rng := newScriptedRange(100, 50, 30, 21)
	p := NewRangePoller("range1", rng, m, motor.NewPowerCell(100), 20, time.Millisecond, testInterval, stop, zap.NewNop().Sugar())

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()
	waitDone(t, rng.done)
	stop.Set()
	<-ran

	if got := dev.actuations(); len(got) != 0 {
		t.Fatalf("actuations above threshold: %v", got)
	}
}
