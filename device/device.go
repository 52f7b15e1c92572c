// Package device defines the narrow hardware interfaces the rest of the
// system is written against. The nxt package implements them for a real
// (or simulated) brick; tests implement them in-memory.
package device

// Telemetry is a snapshot of a motor's counters.
type Telemetry struct {
	// TachoCount counts degrees since the last counter reset.
	TachoCount int32 `json:"tacho_count"`
	// BlockTachoCount counts degrees since the last block boundary.
	BlockTachoCount int32 `json:"block_tacho_count"`
	// RotationCount counts degrees since the motor was last started.
	RotationCount int32 `json:"rotation_count"`
}

// Motor is a single actuator port. Implementations are not required to
// be safe for concurrent use; callers must serialize access.
type Motor interface {
	// Run drives the motor at power (-100..100).
	Run(power int) error
	// Brake actively holds the motor at its current position.
	Brake() error
	// Idle cuts power and lets the motor coast.
	Idle() error
	// Turn rotates by degrees at power, blocking until the rotation
	// has mechanically completed.
	Turn(power, degrees int) error
	Telemetry() (Telemetry, error)
}

// Touch is a boolean contact sensor.
type Touch interface {
	Pressed() (bool, error)
}

// Range is a distance sensor reporting centimeters.
type Range interface {
	Distance() (int, error)
}
