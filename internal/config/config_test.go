package config

import (
	"strings"
	"testing"
	"time"
)

const fullConfig = `
listen: ":9000"
brick:
  serial_port: /dev/rfcomm0
  name: NAMANI
power: 80
poll_interval: 100ms
motors:
  - name: drive_a
    port: A
    brake: true
  - name: drive_b
    port: B
touch_sensors:
  - port: 1
    motor: drive_a
  - port: 2
    motor: drive_b
range_sensors:
  - port: 4
    motor: drive_a
    min_distance: 15
    reverse_timeout: 3s
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q, want :9000", cfg.Listen)
	}
	if cfg.Brick.SerialPort != "/dev/rfcomm0" || cfg.Brick.Name != "NAMANI" {
		t.Errorf("Brick = %+v", cfg.Brick)
	}
	if cfg.Power != 80 {
		t.Errorf("Power = %d, want 80", cfg.Power)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if len(cfg.Motors) != 2 || !cfg.Motors[0].Brake || cfg.Motors[1].Brake {
		t.Errorf("Motors = %+v", cfg.Motors)
	}
	if len(cfg.TouchSensors) != 2 || cfg.TouchSensors[1].Motor != "drive_b" {
		t.Errorf("TouchSensors = %+v", cfg.TouchSensors)
	}
	rs := cfg.RangeSensors
	if len(rs) != 1 || rs[0].MinDistance != 15 || rs[0].ReverseTimeout != 3*time.Second {
		t.Errorf("RangeSensors = %+v", rs)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
brick:
  serial_port: /dev/rfcomm0
motors:
  - name: drive_a
    port: A
range_sensors:
  - port: 4
    motor: drive_a
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want default %q", cfg.Listen, DefaultListen)
	}
	if cfg.Power != DefaultPower {
		t.Errorf("Power = %d, want default %d", cfg.Power, DefaultPower)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default %v", cfg.PollInterval, DefaultPollInterval)
	}
	rs := cfg.RangeSensors[0]
	if rs.MinDistance != DefaultMinDistance || rs.ReverseTimeout != DefaultReverseTimeout {
		t.Errorf("range sensor defaults not applied: %+v", rs)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, test := range []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"no motors",
			`brick: {serial_port: /dev/rfcomm0}`,
			"at least one motor",
		},
		{
			"bad motor port",
			`
motors:
  - name: drive_a
    port: D
`,
			"invalid port",
		},
		{
			"duplicate motor name",
			`
motors:
  - name: drive_a
    port: A
  - name: drive_a
    port: B
`,
			"duplicate motor name",
		},
		{
			"unknown motor reference",
			`
motors:
  - name: drive_a
    port: A
touch_sensors:
  - port: 1
    motor: drive_x
`,
			"unknown motor",
		},
		{
			"bad sensor port",
			`
motors:
  - name: drive_a
    port: A
touch_sensors:
  - port: 9
    motor: drive_a
`,
			"invalid port",
		},
		{
			"power out of range",
			`
power: 150
motors:
  - name: drive_a
    port: A
`,
			"out of range",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.yaml))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, test.wantErr)
			}
		})
	}
}
