package main

import (
	"time"

	"drive-service/comms"
	"drive-service/controller"
	"drive-service/drive"
	"drive-service/hardware"
	"drive-service/sensors"
	"drive-service/telemetry"
)

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

// SPIConfig selects the ADC port.
type SPIConfig struct {
	Port    string `yaml:"port"` // empty selects the first port
	SpeedHz int64  `yaml:"speed_hz"`
}

// PickupConfig locates a speed pickup line.
type PickupConfig struct {
	Chip       string  `yaml:"chip"`
	Offset     int     `yaml:"offset"`
	UnitsPerHz float64 `yaml:"units_per_hz"`
}

// BenchConfig holds the raw ADC counts used when running without hardware.
type BenchConfig struct {
	MotorCurrent   uint16 `yaml:"motor_current"`
	BatteryCurrent uint16 `yaml:"battery_current"`
	BatteryVoltage uint16 `yaml:"battery_voltage"`
	MotorTemp      uint16 `yaml:"motor_temp"`
}

type Options struct {
	LogLevel        LogLevel
	RedisServerAddr string
	RedisServerPort uint16
	CANDevice       string
	MsgMode         drive.MsgMode
	Serial          comms.SerialConfig
	FrameIDs        comms.FrameIDs
	Powertrain      drive.Powertrain
	Hardware        bool
	IO              hardware.Config
	SPI             SPIConfig
	WheelSpeed      PickupConfig
	MotorSpeed      PickupConfig
	Bench           BenchConfig
	Controller      controller.Config
	Synch           drive.SynchConfig
	Calibration     sensors.Calibration
	MQTT            telemetry.MQTTConfig
	Tick            time.Duration
	StatusEvery     int // Redis status write decimation
}

// DefaultOptions returns the built-in configuration. The bench counts read
// as 48 V, 0 A and about 30 C with the default calibration.
func DefaultOptions() *Options {
	io := hardware.DefaultConfig
	io.Lines = make(map[string]hardware.LineMapping, len(hardware.DefaultConfig.Lines))
	for name, m := range hardware.DefaultConfig.Lines {
		io.Lines[name] = m
	}

	return &Options{
		LogLevel:        LogLevelInfo,
		RedisServerAddr: "127.0.0.1",
		RedisServerPort: 6379,
		CANDevice:       "can0",
		MsgMode:         drive.MsgModeCAN,
		Serial: comms.SerialConfig{
			Device:   comms.DefaultSerialDevice,
			BaudRate: comms.DefaultBaudRate,
		},
		FrameIDs:   comms.DefaultFrameIDs,
		Powertrain: drive.BeltDrive,
		IO:         io,
		SPI:        SPIConfig{SpeedHz: 1000000},
		WheelSpeed: PickupConfig{Chip: "gpiochip0", Offset: 5, UnitsPerHz: 0.2},
		MotorSpeed: PickupConfig{Chip: "gpiochip0", Offset: 6, UnitsPerHz: 60},
		Bench: BenchConfig{
			MotorCurrent:   2064,
			BatteryCurrent: 2064,
			BatteryVoltage: 3197,
			MotorTemp:      2130,
		},
		Controller:  controller.DefaultConfig,
		Synch:       drive.DefaultSynchConfig,
		Calibration: sensors.DefaultCalibration,
		MQTT:        telemetry.DefaultMQTTConfig,
		Tick:        10 * time.Millisecond,
		StatusEvery: 10,
	}
}
