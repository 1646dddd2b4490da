package comms

import (
	"context"
	"fmt"

	"drive-service/drive"
)

// LinkConfig contains configuration for a command link
type LinkConfig struct {
	Logger   Logger
	Mode     drive.MsgMode
	CANBus   Bus
	FrameIDs FrameIDs
	Serial   SerialConfig
}

// Link is a source of operator commands
type Link interface {
	// Start begins receiving commands
	Start(ctx context.Context) error

	// Snapshot returns the latest commands. LinkSeen is set when a valid
	// message arrived since the previous Snapshot.
	Snapshot() drive.Commands

	// IsStale returns true if no valid message arrived within LinkTimeout
	IsStale() bool

	// Close releases the underlying device
	Close() error
}

// NewLink creates the link selected by config.Mode
func NewLink(config LinkConfig) (Link, error) {
	switch config.Mode {
	case drive.MsgModeCAN:
		if config.CANBus == nil {
			return nil, fmt.Errorf("CAN link requires a bus")
		}
		return NewCANLink(config.Logger, config.CANBus, config.FrameIDs), nil
	case drive.MsgModeUART:
		return OpenUARTLink(config.Logger, config.Serial)
	default:
		return nil, fmt.Errorf("unknown message mode: %v", config.Mode)
	}
}
