package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"drive-service/comms"
	"drive-service/controller"
	"drive-service/drive"
	"drive-service/hardware"
	"drive-service/sensors"
	"drive-service/telemetry"
)

type RedisConfig struct {
	Server string `yaml:"server"`
	Port   uint16 `yaml:"port"`
}

// FileConfig is the YAML configuration file. Keys left out keep their
// built-in defaults.
type FileConfig struct {
	LogLevel    int                  `yaml:"log_level"`
	Redis       RedisConfig          `yaml:"redis"`
	CANDevice   string               `yaml:"can_device"`
	MsgMode     string               `yaml:"msg_mode"`
	Serial      comms.SerialConfig   `yaml:"serial"`
	FrameIDs    comms.FrameIDs       `yaml:"frame_ids"`
	Powertrain  string               `yaml:"powertrain"`
	Hardware    bool                 `yaml:"hardware"`
	IO          hardware.Config      `yaml:"io"`
	SPI         SPIConfig            `yaml:"spi"`
	WheelSpeed  PickupConfig         `yaml:"wheel_speed"`
	MotorSpeed  PickupConfig         `yaml:"motor_speed"`
	Bench       BenchConfig          `yaml:"bench"`
	Controller  controller.Config    `yaml:"controller"`
	Synch       drive.SynchConfig    `yaml:"synch"`
	Calibration sensors.Calibration  `yaml:"calibration"`
	MQTT        telemetry.MQTTConfig `yaml:"mqtt"`
	Tick        time.Duration        `yaml:"tick"`
	StatusEvery int                  `yaml:"status_every"`
}

// NewFileConfig returns the file view of opts.
func NewFileConfig(opts *Options) *FileConfig {
	return &FileConfig{
		LogLevel:    int(opts.LogLevel),
		Redis:       RedisConfig{Server: opts.RedisServerAddr, Port: opts.RedisServerPort},
		CANDevice:   opts.CANDevice,
		MsgMode:     opts.MsgMode.String(),
		Serial:      opts.Serial,
		FrameIDs:    opts.FrameIDs,
		Powertrain:  opts.Powertrain.String(),
		Hardware:    opts.Hardware,
		IO:          opts.IO,
		SPI:         opts.SPI,
		WheelSpeed:  opts.WheelSpeed,
		MotorSpeed:  opts.MotorSpeed,
		Bench:       opts.Bench,
		Controller:  opts.Controller,
		Synch:       opts.Synch,
		Calibration: opts.Calibration,
		MQTT:        opts.MQTT,
		Tick:        opts.Tick,
		StatusEvery: opts.StatusEvery,
	}
}

// LoadFileConfig reads and validates the configuration file at path.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	fc, err := ParseFileConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return fc, nil
}

// ParseFileConfig decodes data over the built-in defaults. Unknown keys are
// rejected.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	fc := NewFileConfig(DefaultOptions())

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if _, err := fc.Options(); err != nil {
		return nil, err
	}
	return fc, nil
}

// Options converts and validates the file view.
func (fc *FileConfig) Options() (*Options, error) {
	var err error

	if fc.LogLevel < int(LogLevelNone) || fc.LogLevel > int(LogLevelDebug) {
		err = multierr.Append(err, fmt.Errorf("log_level %d out of range", fc.LogLevel))
	}
	mode, ok := drive.ParseMsgMode(fc.MsgMode)
	if !ok {
		err = multierr.Append(err, fmt.Errorf("unknown msg_mode %q", fc.MsgMode))
	}
	pt, ok := drive.ParsePowertrain(fc.Powertrain)
	if !ok {
		err = multierr.Append(err, fmt.Errorf("unknown powertrain %q", fc.Powertrain))
	}
	if fc.Tick <= 0 {
		err = multierr.Append(err, fmt.Errorf("tick must be positive, got %v", fc.Tick))
	}
	if fc.StatusEvery < 1 {
		err = multierr.Append(err, fmt.Errorf("status_every must be at least 1, got %d", fc.StatusEvery))
	}
	err = multierr.Append(err, validateFrameIDs(fc.FrameIDs))
	err = multierr.Append(err, validateIO(fc.IO))
	err = multierr.Append(err, validateSynch(fc.Synch))
	err = multierr.Append(err, validateCalibration(fc.Calibration))
	if fc.Controller.Kp < 0 || fc.Controller.Ki < 0 {
		err = multierr.Append(err, fmt.Errorf("controller gains must not be negative"))
	}
	if err != nil {
		return nil, err
	}

	return &Options{
		LogLevel:        LogLevel(fc.LogLevel),
		RedisServerAddr: fc.Redis.Server,
		RedisServerPort: fc.Redis.Port,
		CANDevice:       fc.CANDevice,
		MsgMode:         mode,
		Serial:          fc.Serial,
		FrameIDs:        fc.FrameIDs,
		Powertrain:      pt,
		Hardware:        fc.Hardware,
		IO:              fc.IO,
		SPI:             fc.SPI,
		WheelSpeed:      fc.WheelSpeed,
		MotorSpeed:      fc.MotorSpeed,
		Bench:           fc.Bench,
		Controller:      fc.Controller,
		Synch:           fc.Synch,
		Calibration:     fc.Calibration,
		MQTT:            fc.MQTT,
		Tick:            fc.Tick,
		StatusEvery:     fc.StatusEvery,
	}, nil
}

func validateFrameIDs(ids comms.FrameIDs) error {
	var err error
	seen := map[uint32]string{}
	for name, id := range map[string]uint32{
		"throttle":     ids.Throttle,
		"brake":        ids.Brake,
		"motor_status": ids.MotorStatus,
	} {
		if id == 0 || id > 0x7FF {
			err = multierr.Append(err, fmt.Errorf("frame_ids.%s 0x%X is not a standard CAN ID", name, id))
			continue
		}
		if other, dup := seen[id]; dup {
			err = multierr.Append(err, fmt.Errorf("frame_ids.%s and frame_ids.%s share 0x%03X", name, other, id))
		}
		seen[id] = name
	}
	return err
}

func validateIO(cfg hardware.Config) error {
	var err error
	for _, name := range []string{
		hardware.LineDriverEnable,
		hardware.LineGear1Request,
		hardware.LineGear2Request,
		hardware.LineGear1Sensed,
		hardware.LineGear2Sensed,
	} {
		if m, ok := cfg.Lines[name]; !ok || m.Chip == "" {
			err = multierr.Append(err, fmt.Errorf("io.lines.%s is not mapped", name))
		}
	}
	if cfg.PWMFrequency <= 0 {
		err = multierr.Append(err, fmt.Errorf("io.pwm_frequency must be positive"))
	}
	return err
}

func validateSynch(cfg drive.SynchConfig) error {
	if cfg.Gear1Ratio <= 0 || cfg.Gear2Ratio <= 0 || cfg.MotorKV <= 0 || cfg.WheelCircumference <= 0 {
		return fmt.Errorf("synch ratios, motor_kv and wheel_circumference must be positive")
	}
	return nil
}

func validateCalibration(cal sensors.Calibration) error {
	var err error
	if cal.FullScale <= 0 || cal.VRef <= 0 {
		err = multierr.Append(err, fmt.Errorf("calibration vref and full_scale must be positive"))
	}
	if cal.TransducerSensitivity == 0 {
		err = multierr.Append(err, fmt.Errorf("calibration transducer_sensitivity must not be zero"))
	}
	if cal.VoltageDivisor <= 0 {
		err = multierr.Append(err, fmt.Errorf("calibration voltage_divisor must be positive"))
	}
	if cal.LowPass <= 0 || cal.LowPass > 1 {
		err = multierr.Append(err, fmt.Errorf("calibration low_pass must be in (0, 1]"))
	}
	return err
}

// applyFlags copies the flags set on the command line over opts, so they
// win over the configuration file.
func applyFlags(fs *flag.FlagSet, opts *Options) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		err = multierr.Append(err, applyFlag(opts, f.Name, f.Value.String()))
	})
	return err
}

func applyFlag(opts *Options, name, value string) error {
	switch name {
	case "log":
		n, err := strconv.Atoi(value)
		if err != nil || n < int(LogLevelNone) || n > int(LogLevelDebug) {
			return fmt.Errorf("invalid log level %q", value)
		}
		opts.LogLevel = LogLevel(n)
	case "redis_server":
		opts.RedisServerAddr = value
	case "redis_port":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid redis port %q: %w", value, err)
		}
		opts.RedisServerPort = uint16(n)
	case "can_device":
		opts.CANDevice = value
	case "msg_mode":
		mode, ok := drive.ParseMsgMode(value)
		if !ok {
			return fmt.Errorf("invalid message mode %q (must be 'can' or 'uart')", value)
		}
		opts.MsgMode = mode
	case "uart_device":
		opts.Serial.Device = value
	case "uart_baud":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid baud rate %q", value)
		}
		opts.Serial.BaudRate = n
	case "powertrain":
		pt, ok := drive.ParsePowertrain(value)
		if !ok {
			return fmt.Errorf("invalid powertrain %q (must be 'belt' or 'geared')", value)
		}
		opts.Powertrain = pt
	case "hardware":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid hardware flag %q: %w", value, err)
		}
		opts.Hardware = b
	case "mqtt_broker":
		opts.MQTT.Broker = value
	case "mqtt_prefix":
		opts.MQTT.Prefix = value
	case "tick":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid tick period %q", value)
		}
		opts.Tick = d
	case "status_every":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid status decimation %q", value)
		}
		opts.StatusEvery = n
	}
	return nil
}
