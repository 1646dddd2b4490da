package comms

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/brutella/can"

	"drive-service/drive"
)

const (
	// Default CAN IDs
	DefaultThrottleFrameID    = 0x110 // data[2] brake pedal, data[3] throttle
	DefaultBrakeFrameID       = 0x120 // data[2] brake request
	DefaultMotorStatusFrameID = 0x450

	// Raw pedal thresholds and scale
	throttleThreshold = 10
	brakeThreshold    = 25
	pedalScale        = 10
)

// FrameIDs selects the identifiers used on the bus
type FrameIDs struct {
	Throttle    uint32 `yaml:"throttle"`
	Brake       uint32 `yaml:"brake"`
	MotorStatus uint32 `yaml:"motor_status"`
}

var DefaultFrameIDs = FrameIDs{
	Throttle:    DefaultThrottleFrameID,
	Brake:       DefaultBrakeFrameID,
	MotorStatus: DefaultMotorStatusFrameID,
}

// Bus is the part of *can.Bus used by the link
type Bus interface {
	Publish(frame can.Frame) error
	Subscribe(handler can.Handler)
}

// StatusFrame is the content of the periodic motor status message
type StatusFrame struct {
	Status       drive.MotorStatus
	MotorCurrent float64
	Energy       float64 // J
	CarSpeed     uint16
}

type CANLink struct {
	baseLink
	bus Bus
	ids FrameIDs
}

func NewCANLink(logger Logger, bus Bus, ids FrameIDs) *CANLink {
	if ids.Throttle == 0 && ids.Brake == 0 && ids.MotorStatus == 0 {
		ids = DefaultFrameIDs
	}
	return &CANLink{
		baseLink: baseLink{logger: logger},
		bus:      bus,
		ids:      ids,
	}
}

func (c *CANLink) Start(ctx context.Context) error {
	c.startBase(ctx)
	c.bus.Subscribe(c)
	c.logger.Info("CAN link started: throttle=0x%03X brake=0x%03X status=0x%03X",
		c.ids.Throttle, c.ids.Brake, c.ids.MotorStatus)
	return nil
}

// Handle implements can.Handler
func (c *CANLink) Handle(frame can.Frame) {
	if err := c.HandleFrame(frame); err != nil {
		c.logger.Warn("Error handling CAN frame 0x%03X: %v", frame.ID, err)
	}
}

func (c *CANLink) HandleFrame(frame can.Frame) error {
	switch frame.ID {
	case c.ids.Throttle:
		if frame.Length < 4 {
			return fmt.Errorf("throttle frame too short: %d", frame.Length)
		}
		DebugCANFrame(c.logger, "RX", frame.ID, frame.Data, frame.Length)
		accel, brake := DecodeThrottle(frame.Data)

		c.mu.Lock()
		c.setCommands(accel, brake)
		c.mu.Unlock()

	case c.ids.Brake:
		if frame.Length < 3 {
			return fmt.Errorf("brake frame too short: %d", frame.Length)
		}
		DebugCANFrame(c.logger, "RX", frame.ID, frame.Data, frame.Length)

		c.mu.Lock()
		c.setCommands(0, frame.Data[2]/pedalScale)
		c.mu.Unlock()
	}

	return nil
}

// DecodeThrottle maps raw pedal positions onto command magnitudes. The
// throttle takes priority over the brake pedal.
func DecodeThrottle(data [8]byte) (accel, brake uint8) {
	if data[3] > throttleThreshold {
		return data[3] / pedalScale, 0
	}
	if data[2] > brakeThreshold {
		return 0, data[2] / pedalScale
	}
	return 0, 0
}

// EncodeStatus packs the motor status message, little endian
func EncodeStatus(id uint32, st StatusFrame) can.Frame {
	var data [8]byte
	data[0] = uint8(st.Status)
	data[1] = 0
	binary.LittleEndian.PutUint16(data[2:4], uint16(int16(clampFloat(st.MotorCurrent, math.MinInt16, math.MaxInt16))))
	binary.LittleEndian.PutUint16(data[4:6], uint16(clampFloat(st.Energy*1000, 0, math.MaxUint16)))
	binary.LittleEndian.PutUint16(data[6:8], st.CarSpeed)
	return packFrame(id, data[:])
}

// SendStatus publishes the motor status message
func (c *CANLink) SendStatus(st StatusFrame) error {
	frame := EncodeStatus(c.ids.MotorStatus, st)
	DebugCANFrame(c.logger, "TX", frame.ID, frame.Data, frame.Length)
	if err := c.bus.Publish(frame); err != nil {
		return fmt.Errorf("failed to send motor status: %w", err)
	}
	return nil
}

func (c *CANLink) Close() error {
	c.stopBase()
	return nil
}

// packFrame creates a CAN frame with the given ID and data
func packFrame(id uint32, data []byte) can.Frame {
	var frameData [8]byte
	copy(frameData[:], data)
	return can.Frame{
		ID:     id,
		Length: uint8(len(data)),
		Flags:  0,
		Data:   frameData,
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
