package nxt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/namani/nxtcar/device"
)

func startSim(t *testing.T, name string) (*Simulator, *Brick) {
	t.Helper()
	sim, peer := NewSimulator(name)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sim.Run(ctx)
	b, err := NewBrick(peer, name)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return sim, b
}

func TestConnectReportsName(t *testing.T) {
	_, b := startSim(t, "NAMANI")
	if b.Name() != "NAMANI" {
		t.Errorf("Name = %q, want NAMANI", b.Name())
	}
}

func TestConnectRejectsWrongName(t *testing.T) {
	sim, peer := NewSimulator("OTHER")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sim.Run(ctx)
	_, err := NewBrick(peer, "NAMANI")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("NewBrick err = %v, want ErrNotFound", err)
	}
}

func TestTouchSensor(t *testing.T) {
	sim, b := startSim(t, "NAMANI")
	port, _ := ParseInputPort(1)
	touch, err := b.Touch(port)
	if err != nil {
		t.Fatal(err)
	}
	if pressed, err := touch.Pressed(); err != nil || pressed {
		t.Fatalf("Pressed = %t, %v; want false, nil", pressed, err)
	}
	sim.SetPressed(port, true)
	if pressed, err := touch.Pressed(); err != nil || !pressed {
		t.Fatalf("Pressed = %t, %v; want true, nil", pressed, err)
	}
}

func TestUltrasonicSensor(t *testing.T) {
	sim, b := startSim(t, "NAMANI")
	port, _ := ParseInputPort(4)
	rng, err := b.Ultrasonic(port)
	if err != nil {
		t.Fatal(err)
	}
	if d, err := rng.Distance(); err != nil || d != 255 {
		t.Fatalf("Distance = %d, %v; want 255, nil", d, err)
	}
	sim.SetDistance(port, 12)
	if d, err := rng.Distance(); err != nil || d != 12 {
		t.Fatalf("Distance = %d, %v; want 12, nil", d, err)
	}
}

func TestMotorRunAndIdle(t *testing.T) {
	_, b := startSim(t, "NAMANI")
	m := b.Motor(OutA)

	tel, err := m.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(device.Telemetry{}, tel); diff != "" {
		t.Errorf("initial telemetry (-want +got):\n%s", diff)
	}

	if err := m.Run(100); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	tel, err = m.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if tel.TachoCount <= 0 {
		t.Fatalf("tacho = %d after running, want > 0", tel.TachoCount)
	}

	if err := m.Idle(); err != nil {
		t.Fatal(err)
	}
	frozen, err := m.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	tel, err = m.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if tel.TachoCount != frozen.TachoCount {
		t.Errorf("tacho moved from %d to %d while idle", frozen.TachoCount, tel.TachoCount)
	}
}

func TestMotorTurnBlocksUntilComplete(t *testing.T) {
	_, b := startSim(t, "NAMANI")
	m := b.Motor(OutB)

	if err := m.Turn(100, 180); err != nil {
		t.Fatal(err)
	}
	tel, err := m.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if tel.TachoCount != 180 {
		t.Errorf("tacho = %d after 180 degree turn, want 180", tel.TachoCount)
	}

	// Negative power turns the other way.
	if err := m.Turn(-100, 180); err != nil {
		t.Fatal(err)
	}
	tel, err = m.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if tel.TachoCount != 0 {
		t.Errorf("tacho = %d after reverse turn, want 0", tel.TachoCount)
	}
}

func TestMotorTurnRejectsNonPositiveDegrees(t *testing.T) {
	_, b := startSim(t, "NAMANI")
	if err := b.Motor(OutC).Turn(100, 0); err == nil {
		t.Fatal("Turn(100, 0) succeeded, want error")
	}
}
