package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drive-service/drive"
	"drive-service/hardware"
)

func TestParseFileConfig_Empty(t *testing.T) {
	fc, err := ParseFileConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts, err := fc.Options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultOptions()
	if opts.Tick != def.Tick || opts.Powertrain != def.Powertrain || opts.FrameIDs != def.FrameIDs {
		t.Errorf("expected defaults, got %+v", opts)
	}
}

func TestParseFileConfig_Overrides(t *testing.T) {
	data := []byte(`
powertrain: geared
msg_mode: uart
tick: 20ms
serial:
  device: /dev/ttyUSB0
frame_ids:
  throttle: 0x200
io:
  lines:
    driver_enable:
      chip: gpiochip1
      offset: 3
synch:
  gear1_ratio: 7.5
controller:
  kp: 0.2
mqtt:
  broker: localhost:1883
`)
	fc, err := ParseFileConfig(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts, err := fc.Options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if opts.Powertrain != drive.GearedDrive || opts.MsgMode != drive.MsgModeUART {
		t.Errorf("unexpected modes: %s %s", opts.Powertrain, opts.MsgMode)
	}
	if opts.Tick != 20*time.Millisecond {
		t.Errorf("expected 20ms tick, got %v", opts.Tick)
	}
	if opts.Serial.Device != "/dev/ttyUSB0" || opts.Serial.BaudRate != 500000 {
		t.Errorf("unexpected serial config %+v", opts.Serial)
	}
	if opts.FrameIDs.Throttle != 0x200 || opts.FrameIDs.Brake != 0x120 {
		t.Errorf("unexpected frame ids %+v", opts.FrameIDs)
	}
	if m := opts.IO.Lines[hardware.LineDriverEnable]; m.Chip != "gpiochip1" || m.Offset != 3 {
		t.Errorf("unexpected driver enable mapping %+v", m)
	}
	if m := opts.IO.Lines[hardware.LineGear1Request]; m.Offset != 22 {
		t.Errorf("expected untouched lines to keep defaults, got %+v", m)
	}
	if opts.Synch.Gear1Ratio != 7.5 || opts.Synch.Gear2Ratio != drive.DefaultSynchConfig.Gear2Ratio {
		t.Errorf("unexpected synch config %+v", opts.Synch)
	}
	if opts.Controller.Kp != 0.2 || opts.Controller.Ki != 0.05 {
		t.Errorf("unexpected controller config %+v", opts.Controller)
	}
	if opts.MQTT.Broker != "localhost:1883" || opts.MQTT.Prefix != "drive/motor" {
		t.Errorf("unexpected mqtt config %+v", opts.MQTT)
	}

	if def := hardware.DefaultConfig.Lines[hardware.LineDriverEnable]; def.Chip != "gpiochip0" {
		t.Errorf("package defaults must not be modified, got %+v", def)
	}
}

func TestParseFileConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown key", "speed_limit: 3\n", "speed_limit"},
		{"powertrain", "powertrain: chain\n", "powertrain"},
		{"msg mode", "msg_mode: lin\n", "msg_mode"},
		{"tick", "tick: 0s\n", "tick"},
		{"frame id", "frame_ids:\n  brake: 0x110\n", "share"},
		{"extended frame id", "frame_ids:\n  throttle: 0x1000\n", "standard CAN ID"},
		{"synch", "synch:\n  motor_kv: 0\n", "motor_kv"},
		{"low pass", "calibration:\n  low_pass: 2\n", "low_pass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFileConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.yaml")
	if err := os.WriteFile(path, []byte("powertrain: geared\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.Powertrain != "geared" {
		t.Errorf("expected geared, got %s", fc.Powertrain)
	}

	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func newTestFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("log", 3, "")
	fs.String("msg_mode", "can", "")
	fs.String("powertrain", "belt", "")
	fs.Int("redis_port", 6379, "")
	fs.Bool("hardware", false, "")
	fs.Duration("tick", 10*time.Millisecond, "")
	fs.String("mqtt_broker", "", "")
	return fs
}

func TestApplyFlags_OnlyExplicit(t *testing.T) {
	opts := DefaultOptions()
	opts.Powertrain = drive.GearedDrive
	opts.Tick = 20 * time.Millisecond

	fs := newTestFlagSet()
	if err := fs.Parse([]string{"-msg_mode", "uart", "-hardware", "-tick", "5ms", "-mqtt_broker", "broker:1883"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := applyFlags(fs, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if opts.MsgMode != drive.MsgModeUART || !opts.Hardware || opts.Tick != 5*time.Millisecond {
		t.Errorf("explicit flags not applied: %+v", opts)
	}
	if opts.MQTT.Broker != "broker:1883" {
		t.Errorf("expected broker from flag, got %q", opts.MQTT.Broker)
	}
	if opts.Powertrain != drive.GearedDrive {
		t.Errorf("unset flag must not override file value, got %s", opts.Powertrain)
	}
}

func TestApplyFlags_Invalid(t *testing.T) {
	tests := [][]string{
		{"-log", "7"},
		{"-msg_mode", "lin"},
		{"-powertrain", "chain"},
		{"-redis_port", "70000"},
		{"-tick", "-1ms"},
	}
	for _, args := range tests {
		fs := newTestFlagSet()
		if err := fs.Parse(args); err != nil {
			t.Fatalf("parse %v failed: %v", args, err)
		}
		if err := applyFlags(fs, DefaultOptions()); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}
